package redis

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// SaveChatLanguage remembers the language the bot should use for a chat.
func SaveChatLanguage(chatID string, language string) {
	log.Info("Setting language to ", language, " for chat ", chatID)
	RedisClient.Set(context.Background(), chatID+":language", language, 0)
}

// GetChatLanguage falls back to English when nothing is stored.
func GetChatLanguage(chatID string) string {
	language, err := RedisClient.Get(context.Background(), chatID+":language").Result()
	if err != nil || language == "" {
		return "en"
	}
	return language
}

func IsUserBanned(chatID string) bool {
	banned, err := RedisClient.Get(context.Background(), chatID+":banned").Result()
	if err != nil {
		return false
	}
	return banned == "true"
}

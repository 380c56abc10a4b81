package api

import (
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	"subtrack/m/v2/app/config"
)

// OwnerIDHeader carries the caller identity. In production it is installed
// by the fronting webhook layer after verifying the Mini App init data;
// verification itself lives outside this service.
const OwnerIDHeader = "X-Telegram-User-Id"

var errUnauthorized = errors.New("caller identity missing")

// ResolveOwnerID extracts the caller identity, falling back to the
// configured development identity outside production.
func ResolveOwnerID(ctx *fasthttp.RequestCtx) (int64, error) {
	header := string(ctx.Request.Header.Peek(OwnerIDHeader))
	if header != "" {
		id, err := strconv.ParseInt(header, 10, 64)
		if err != nil || id <= 0 {
			return 0, errUnauthorized
		}
		return id, nil
	}
	if config.CONFIG.Environment != "production" && config.CONFIG.DevUserID != 0 {
		return config.CONFIG.DevUserID, nil
	}
	return 0, errUnauthorized
}

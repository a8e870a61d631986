package cli

import (
	"errors"
	"net/url"
	"strings"
)

var errNoRoomKey = errors.New("no room key given")

// parseRoomKey accepts a bare room key or a meeting link whose last path
// segment is the key, e.g. https://meet.example.com/room/standup.
func parseRoomKey(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if !strings.Contains(arg, "://") {
		if arg == "" || strings.Contains(arg, "/") {
			return "", errNoRoomKey
		}
		return arg, nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", err
	}
	if key := u.Query().Get("room"); key != "" {
		return key, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	key := segments[len(segments)-1]
	if key == "" {
		return "", errNoRoomKey
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, nil
}

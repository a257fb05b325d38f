package logger

import (
	"fmt"
	"log/slog"
)

func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func TierID(id fmt.Stringer) slog.Attr {
	return slog.String("tier_id", id.String())
}

func ProductID(id fmt.Stringer) slog.Attr {
	return slog.String("product_id", id.String())
}

func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

func State(s fmt.Stringer) slog.Attr {
	return slog.String("state", s.String())
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

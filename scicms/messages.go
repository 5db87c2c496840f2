package scicms

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys of user-facing errors
const (
	msgRequestFailed  = "request failed"
	msgRequestDenied  = "request rejected by server"
	msgRequestTimeout = "request timed out"
	msgFilterFormat   = "invalid filter format"
)

// catalog holds the message texts per supported language
var catalog = map[language.Tag]map[string]string{
	language.English: {
		msgRequestFailed:  "Request failed",
		msgRequestDenied:  "The server rejected the request",
		msgRequestTimeout: "The request timed out",
		msgFilterFormat:   "Invalid filter format for %s: %q",
	},
	language.Russian: {
		msgRequestFailed:  "Ошибка выполнения запроса",
		msgRequestDenied:  "Сервер отклонил запрос",
		msgRequestTimeout: "Превышено время ожидания запроса",
		msgFilterFormat:   "Неверный формат фильтра %s: %q",
	},
}

func init() {
	if err := registerMessages(catalog); err != nil {
		panic(err)
	}
}

// registerMessages adds every text of messages to the default catalog
func registerMessages(messages map[language.Tag]map[string]string) error {
	for tag, texts := range messages {
		for key, text := range texts {
			if err := message.SetString(tag, key, text); err != nil {
				return fmt.Errorf("failed to register %s message %q: %w", tag, key, err)
			}
		}
	}
	return nil
}

// ParseLanguage maps a configured language code to a supported tag,
// falling back to English
func ParseLanguage(code string) language.Tag {
	matcher := language.NewMatcher([]language.Tag{language.English, language.Russian})
	tag, _ := language.MatchStrings(matcher, code)
	base, _ := tag.Base()
	switch base.String() {
	case "ru":
		return language.Russian
	default:
		return language.English
	}
}

package ai

import "strings"

// ExtractJSON убирает markdown-ограждение (```json ... ```) и пробелы вокруг ответа модели.
// Текст без ограждения возвращается обрезанным по краям.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// первая строка - метка языка (json или пусто)
		if lang := strings.TrimSpace(s[:nl]); lang == "" || !strings.ContainsAny(lang, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

package models

import "time"

// ChoiceView - вариант ответа в том виде, в котором его видит клиент.
type ChoiceView struct {
	Text      string `json:"text"`
	IsCorrect *bool  `json:"isCorrect,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

// ScenarioView - сценарий для клиента.
type ScenarioView struct {
	ScenarioText string       `json:"scenarioText"`
	CharacterA   Character    `json:"characterA"`
	CharacterB   Character    `json:"characterB"`
	Choices      []ChoiceView `json:"choices"`
}

// SnapshotView - состояние сессии для клиента.
// Пока игрок не ответил (playing), правильность и отзывы вариантов не раскрываются.
type SnapshotView struct {
	SessionID   string        `json:"sessionId"`
	State       GameState     `json:"state"`
	Score       int           `json:"score"`
	Level       int           `json:"level"`
	TotalLevels int           `json:"totalLevels"`
	Scenario    *ScenarioView `json:"scenario,omitempty"`
	Feedback    *Feedback     `json:"feedback,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	Verdict     string        `json:"verdict,omitempty"`
	Version     uint64        `json:"version"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// View строит клиентское представление снимка.
func (s Snapshot) View() SnapshotView {
	v := SnapshotView{
		SessionID:   s.SessionID,
		State:       s.State,
		Score:       s.Score,
		Level:       s.Level,
		TotalLevels: s.TotalLevels,
		Feedback:    s.Feedback,
		Error:       s.Error,
		ErrorKind:   s.ErrorKind,
		Verdict:     s.Verdict,
		Version:     s.Version,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Scenario == nil {
		return v
	}

	reveal := s.State != StatePlaying
	sv := &ScenarioView{
		ScenarioText: s.Scenario.ScenarioText,
		CharacterA:   s.Scenario.CharacterA,
		CharacterB:   s.Scenario.CharacterB,
		Choices:      make([]ChoiceView, len(s.Scenario.Choices)),
	}
	for i, c := range s.Scenario.Choices {
		sv.Choices[i] = ChoiceView{Text: c.Text}
		if reveal {
			isCorrect := c.IsCorrect
			sv.Choices[i].IsCorrect = &isCorrect
			sv.Choices[i].Feedback = c.Feedback
		}
	}
	v.Scenario = sv
	return v
}

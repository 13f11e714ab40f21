package models

// TotalLevels - количество раундов в одной игре.
const TotalLevels = 5

// Choice - один из двух вариантов ответа в сценарии.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback"`
}

// Character - участник сценария.
type Character struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Scenario - одна ситуация, сгенерированная AI.
// Провайдер возвращает сценарий только если в нем ровно два варианта и ровно один правильный.
type Scenario struct {
	ScenarioText string    `json:"scenarioText"`
	CharacterA   Character `json:"characterA"`
	CharacterB   Character `json:"characterB"`
	Choices      []Choice  `json:"choices"`
}

// CorrectCount возвращает количество вариантов, помеченных как правильные.
func (s *Scenario) CorrectCount() int {
	n := 0
	for _, c := range s.Choices {
		if c.IsCorrect {
			n++
		}
	}
	return n
}

// Clone возвращает глубокую копию сценария.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Choices = append([]Choice(nil), s.Choices...)
	return &cp
}

// Feedback - результат последнего выбора игрока.
type Feedback struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

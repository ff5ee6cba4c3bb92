package model

// QuizQuestion 一道四选一的选择题。Options 的键为选项字母 A-D。
type QuizQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	Explanation   string            `json:"explanation"`
	Difficulty    string            `json:"difficulty"` // easy / medium / hard
}

// QuizDTO 是一次出题请求的完整结果。
type QuizDTO struct {
	DocumentID          string         `json:"documentId"`
	Questions           []QuizQuestion `json:"questions"`
	TotalQuestions      int            `json:"totalQuestions"`
	DifficultyBreakdown map[string]int `json:"difficultyBreakdown"`
}

// QuizValidationDTO 单题判分结果。
type QuizValidationDTO struct {
	IsCorrect         bool   `json:"isCorrect"`
	CorrectAnswer     string `json:"correctAnswer"`
	UserAnswer        string `json:"userAnswer"`
	Explanation       string `json:"explanation"`
	CorrectOptionText string `json:"correctOptionText"`
}

// SummaryDTO 摘要结果，按请求类型填充其中一项或两项。
type SummaryDTO struct {
	DocumentID      string `json:"documentId"`
	ShortSummary    string `json:"shortSummary,omitempty"`
	DetailedSummary string `json:"detailedSummary,omitempty"`
}

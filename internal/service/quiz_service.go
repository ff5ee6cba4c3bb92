package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/llm"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tokenizer"
)

// QuizService 基于文档内容出选择题、判分，并生成建议的学习问题。
type QuizService interface {
	Generate(ctx context.Context, documentID string, count int, difficulty string) (*model.QuizDTO, error)
	Validate(questions []model.QuizQuestion, answers []string) ([]model.QuizValidationDTO, int)
	Suggest(ctx context.Context, documentID string) ([]string, error)
}

type quizService struct {
	docRepo     repository.DocumentRepository
	passageRepo repository.PassageRepository
	llmClient   llm.Client
	cfg         config.ChatConfig
}

// NewQuizService 创建一个新的 QuizService 实例。
func NewQuizService(
	docRepo repository.DocumentRepository,
	passageRepo repository.PassageRepository,
	llmClient llm.Client,
	cfg config.ChatConfig,
) QuizService {
	return &quizService{
		docRepo:     docRepo,
		passageRepo: passageRepo,
		llmClient:   llmClient,
		cfg:         cfg,
	}
}

// Generate 生成最多 cfg.QuizMaxQuestions 道四选一的选择题。
// 提示词要求严格 JSON 输出；模型不守约时退回行解析。
func (s *quizService) Generate(ctx context.Context, documentID string, count int, difficulty string) (*model.QuizDTO, error) {
	if count <= 0 || count > s.cfg.QuizMaxQuestions {
		count = s.cfg.QuizMaxQuestions
	}
	switch difficulty {
	case "", "easy", "medium", "hard":
	default:
		return nil, fmt.Errorf("不支持的难度: %s", difficulty)
	}

	text, err := readyDocumentText(s.docRepo, s.passageRepo, documentID)
	if err != nil {
		return nil, err
	}

	prompt := buildQuizPrompt(tokenizer.Truncate(text, s.cfg.LongSummaryTokens), count, difficulty)
	raw, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, errs.NewSynthesisError("生成题目失败", err)
	}

	questions := parseQuizQuestions(raw)
	if len(questions) == 0 {
		return nil, errs.NewSynthesisError("无法从模型输出中解析出题目", nil)
	}
	if len(questions) > count {
		questions = questions[:count]
	}

	breakdown := make(map[string]int)
	for i := range questions {
		if questions[i].Difficulty == "" {
			if difficulty != "" {
				questions[i].Difficulty = difficulty
			} else {
				questions[i].Difficulty = "medium"
			}
		}
		breakdown[questions[i].Difficulty]++
	}
	log.Infof("[Quiz] 出题完成, fingerprint: %s, 题数: %d", documentID, len(questions))
	return &model.QuizDTO{
		DocumentID:          documentID,
		Questions:           questions,
		TotalQuestions:      len(questions),
		DifficultyBreakdown: breakdown,
	}, nil
}

// Validate 逐题判分，返回每题的判定与百分制总分。
func (s *quizService) Validate(questions []model.QuizQuestion, answers []string) ([]model.QuizValidationDTO, int) {
	results := make([]model.QuizValidationDTO, len(questions))
	correct := 0
	for i, q := range questions {
		var userAnswer string
		if i < len(answers) {
			userAnswer = strings.ToUpper(strings.TrimSpace(answers[i]))
		}
		correctAnswer := strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
		isCorrect := userAnswer != "" && userAnswer == correctAnswer
		if isCorrect {
			correct++
		}
		results[i] = model.QuizValidationDTO{
			IsCorrect:         isCorrect,
			CorrectAnswer:     correctAnswer,
			UserAnswer:        userAnswer,
			Explanation:       q.Explanation,
			CorrectOptionText: q.Options[correctAnswer],
		}
	}
	score := 0
	if len(questions) > 0 {
		score = correct * 100 / len(questions)
	}
	return results, score
}

// Suggest 基于文档开头生成 5 个建议的学习问题。
func (s *quizService) Suggest(ctx context.Context, documentID string) ([]string, error) {
	text, err := readyDocumentText(s.docRepo, s.passageRepo, documentID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"下面是一篇文档的开头部分。请提出 5 个值得读者深入思考的学习问题，"+
			"每行一个问题，以阿拉伯数字加点开头（如“1. ”），不要输出其他内容。\n\n%s",
		tokenizer.Truncate(text, s.cfg.ShortSummaryTokens))

	// 建议问题希望发散一些，温度高于默认
	temperature := 0.9
	raw, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}},
		&llm.GenerationParams{Temperature: &temperature})
	if err != nil {
		return nil, errs.NewSynthesisError("生成建议问题失败", err)
	}

	questions := parseNumberedLines(raw)
	if len(questions) > 5 {
		questions = questions[:5]
	}
	if len(questions) == 0 {
		return nil, errs.NewSynthesisError("无法从模型输出中解析出建议问题", nil)
	}
	return questions, nil
}

func buildQuizPrompt(text string, count int, difficulty string) string {
	difficultyLine := "题目难度从易到难分布。"
	if difficulty != "" {
		difficultyLine = fmt.Sprintf("所有题目的难度均为 %s。", difficulty)
	}
	return fmt.Sprintf(
		"请根据下面的文档内容出 %d 道四选一的选择题。%s\n"+
			"严格按如下 JSON 数组格式输出，不要输出 JSON 之外的任何内容：\n"+
			"[{\"question\":\"题干\",\"options\":{\"A\":\"...\",\"B\":\"...\",\"C\":\"...\",\"D\":\"...\"},"+
			"\"correctAnswer\":\"A\",\"explanation\":\"解析\",\"difficulty\":\"easy|medium|hard\"}]\n\n%s",
		count, difficultyLine, text)
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseQuizQuestions 解析模型输出的题目。优先整体按 JSON 解析
// （容忍 Markdown 代码栅栏与 {\"questions\": [...]} 包装），失败后退回行解析。
func parseQuizQuestions(raw string) []model.QuizQuestion {
	candidate := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var questions []model.QuizQuestion
	if err := json.Unmarshal([]byte(candidate), &questions); err == nil {
		return sanitizeQuestions(questions)
	}
	var wrapped struct {
		Questions []model.QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(candidate), &wrapped); err == nil && len(wrapped.Questions) > 0 {
		return sanitizeQuestions(wrapped.Questions)
	}
	// JSON 里混入了前后说明文字：截取第一个 '[' 到最后一个 ']' 再试一次
	if start, end := strings.Index(candidate, "["), strings.LastIndex(candidate, "]"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &questions); err == nil {
			return sanitizeQuestions(questions)
		}
	}
	return parseQuizPlaintext(raw)
}

// sanitizeQuestions 丢弃缺少题干、选项或答案的条目。
func sanitizeQuestions(questions []model.QuizQuestion) []model.QuizQuestion {
	valid := questions[:0]
	for _, q := range questions {
		q.CorrectAnswer = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
		if q.Question == "" || len(q.Options) < 2 {
			continue
		}
		if _, ok := q.Options[q.CorrectAnswer]; !ok {
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

var (
	numberedLineRe = regexp.MustCompile(`^\s*\d+[.、)]\s*(.+)$`)
	optionLineRe   = regexp.MustCompile(`^\s*([A-D])[.、)]\s*(.+)$`)
	answerLineRe   = regexp.MustCompile(`^\s*(?:答案|正确答案|Answer)\s*[:：]?\s*([A-D])`)
	explainLineRe  = regexp.MustCompile(`^\s*(?:解析|说明|Explanation)\s*[:：]?\s*(.+)$`)
)

// parseQuizPlaintext 行解析兜底：
//
//	1. 题干
//	A. 选项 … D. 选项
//	答案: B
//	解析: …
func parseQuizPlaintext(raw string) []model.QuizQuestion {
	var questions []model.QuizQuestion
	var current *model.QuizQuestion

	flush := func() {
		if current != nil && current.Question != "" && len(current.Options) >= 2 {
			if _, ok := current.Options[current.CorrectAnswer]; ok {
				questions = append(questions, *current)
			}
		}
		current = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := optionLineRe.FindStringSubmatch(line); m != nil && current != nil {
			current.Options[m[1]] = strings.TrimSpace(m[2])
			continue
		}
		if m := answerLineRe.FindStringSubmatch(line); m != nil && current != nil {
			current.CorrectAnswer = m[1]
			continue
		}
		if m := explainLineRe.FindStringSubmatch(line); m != nil && current != nil {
			current.Explanation = strings.TrimSpace(m[1])
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &model.QuizQuestion{
				Question: strings.TrimSpace(m[1]),
				Options:  make(map[string]string),
			}
		}
	}
	flush()
	return questions
}

// parseNumberedLines 提取以数字编号开头的行内容。
func parseNumberedLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if m := numberedLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			lines = append(lines, strings.TrimSpace(m[1]))
		}
	}
	return lines
}

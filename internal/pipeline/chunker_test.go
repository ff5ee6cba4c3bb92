package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiaowen-go/internal/model"
	"xiaowen-go/pkg/tokenizer"
)

// words 生成 n 个不含标点的 token。
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplitWindowCount(t *testing.T) {
	// 3000 token、片段 500、重叠 50 → 步长 450 → 7 个片段
	c := NewChunker(500, 50, 50)
	passages := c.Split([]string{words(3000)})

	require.Len(t, passages, 7)
	for i, p := range passages {
		assert.Equal(t, i, p.Ordinal)
	}
	for _, p := range passages[:6] {
		assert.Equal(t, 500, p.TokenCount)
	}
	assert.Equal(t, 300, passages[6].TokenCount)
	assert.Equal(t, 0, passages[0].OverlapTokens)
	for _, p := range passages[1:] {
		assert.Equal(t, 50, p.OverlapTokens)
	}
}

func TestSplitShortDocumentSinglePassage(t *testing.T) {
	c := NewChunker(500, 50, 50)
	passages := c.Split([]string{"短 文档 只有 几个 词"})

	require.Len(t, passages, 1)
	assert.Equal(t, 0, passages[0].Ordinal)
	assert.Equal(t, 0, passages[0].OverlapTokens)
	assert.Equal(t, 1, passages[0].PageStart)
	assert.Equal(t, 1, passages[0].PageEnd)
}

func TestSplitEmptyPages(t *testing.T) {
	c := NewChunker(500, 50, 50)
	assert.Nil(t, c.Split(nil))
	assert.Nil(t, c.Split([]string{"", "   ", ""}))
}

func TestSplitPassagesAreExactSubstrings(t *testing.T) {
	pages := []string{
		"第1章 光合作用是植物将光能转化为化学能的过程。It happens in chloroplasts.",
		"The light reactions produce ATP. 暗反应固定二氧化碳。",
	}
	full := strings.Join(pages, "\n")

	c := NewChunker(8, 2, 4)
	passages := c.Split(pages)
	require.NotEmpty(t, passages)

	for _, p := range passages {
		end := p.StartOffset + len(p.Text)
		require.LessOrEqual(t, end, len(full))
		assert.Equal(t, full[p.StartOffset:end], p.Text, "片段必须是全文的精确子串")
		assert.LessOrEqual(t, p.TokenCount, 8)
		assert.Equal(t, p.TokenCount, tokenizer.Count(p.Text))
	}
}

func TestSplitAlignsToSentenceEnd(t *testing.T) {
	// token 7 以句号结尾，落在回看窗口内，切点应对齐到它之后
	text := "alpha beta gamma delta epsilon zeta eta done. " + words(20)
	c := NewChunker(10, 2, 5)
	passages := c.Split([]string{text})

	require.Greater(t, len(passages), 1)
	assert.True(t, strings.HasSuffix(passages[0].Text, "done."),
		"首个片段应在句末断开, got: %q", passages[0].Text)
	assert.Equal(t, 8, passages[0].TokenCount)
}

func TestSplitHardCutWithoutSentenceEnd(t *testing.T) {
	c := NewChunker(10, 2, 5)
	passages := c.Split([]string{words(25)})

	require.Greater(t, len(passages), 1)
	assert.Equal(t, 10, passages[0].TokenCount, "找不到句末时按窗口上限硬切")
}

func TestSplitCJKSentences(t *testing.T) {
	// 每个汉字与全角句号都是独立 token
	text := strings.Repeat("这是一句话。", 10)
	c := NewChunker(9, 2, 4)
	passages := c.Split([]string{text})

	require.Greater(t, len(passages), 1)
	for _, p := range passages[:len(passages)-1] {
		assert.True(t, strings.HasSuffix(p.Text, "。"),
			"中文片段应在全角句号后断开, got: %q", p.Text)
	}
}

func TestSplitPageRanges(t *testing.T) {
	pages := []string{words(12), words(12), words(12)}
	c := NewChunker(10, 2, 0)
	passages := c.Split(pages)
	require.NotEmpty(t, passages)

	assert.Equal(t, 1, passages[0].PageStart)
	last := passages[len(passages)-1]
	assert.Equal(t, 3, last.PageEnd)
	for _, p := range passages {
		assert.GreaterOrEqual(t, p.PageEnd, p.PageStart)
		assert.GreaterOrEqual(t, p.PageStart, 1)
		assert.LessOrEqual(t, p.PageEnd, 3)
	}
}

func TestReconstructLossless(t *testing.T) {
	pages := []string{
		"第1章 细胞的结构。细胞膜控制物质进出，细胞核保存遗传信息。",
		"Mitochondria are the powerhouse of the cell. They produce ATP.\nRibosomes build proteins.",
		"总结：细胞是生命活动的基本单位。",
	}
	full := strings.Join(pages, "\n")

	for _, tc := range []struct{ size, overlap, lookback int }{
		{6, 1, 3},
		{10, 3, 5},
		{500, 50, 50},
	} {
		c := NewChunker(tc.size, tc.overlap, tc.lookback)
		passages := c.Split(pages)
		require.NotEmpty(t, passages)
		assert.Equal(t, full, Reconstruct(passages),
			"size=%d overlap=%d lookback=%d 应无损还原", tc.size, tc.overlap, tc.lookback)
	}
}

func TestReconstructShuffledOrdinals(t *testing.T) {
	pages := []string{words(40)}
	c := NewChunker(10, 2, 0)
	passages := c.Split(pages)
	require.Greater(t, len(passages), 2)

	// 乱序输入也按 Ordinal 还原
	shuffled := make([]model.Passage, 0, len(passages))
	for i := len(passages) - 1; i >= 0; i-- {
		shuffled = append(shuffled, passages[i])
	}
	assert.Equal(t, Reconstruct(passages), Reconstruct(shuffled))
}

func TestReconstructEmpty(t *testing.T) {
	assert.Equal(t, "", Reconstruct(nil))
}

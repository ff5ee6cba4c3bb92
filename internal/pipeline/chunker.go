package pipeline

import (
	"sort"
	"strings"
	"unicode/utf8"

	"xiaowen-go/internal/model"
	"xiaowen-go/pkg/tokenizer"
)

// 句末标点：切块时优先在这些 token 之后断开。
const sentenceEnders = ".!?;。！？；"

// Chunker 将整篇逐页文本切成带重叠的片段序列。
//
// 切分以 token 为单位：每个片段最多 size 个 token，相邻片段共享 overlap
// 个 token。片段边界尽量对齐句末（向前最多回看 lookback 个 token 寻找
// 句末标点或换行），找不到就硬切。片段文本是整篇文本的精确子串，
// 按序去掉重叠后可以无损还原整篇文本。
type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// NewChunker 创建切块器。overlap 至少为 1 个 token，保证相邻片段在字节
// 区间上相连，去重叠还原才能覆盖 token 之间的空白。
func NewChunker(size, overlap, lookback int) *Chunker {
	if size < 2 {
		size = 2
	}
	if overlap < 1 {
		overlap = 1
	}
	if overlap >= size {
		overlap = size - 1
	}
	if lookback < 0 {
		lookback = 0
	}
	return &Chunker{size: size, overlap: overlap, lookback: lookback}
}

// Split 把逐页文本切成片段。页间以换行符拼接；返回的片段 Ordinal 从 0
// 起连续递增，Fingerprint 留空由调用方回填。全文没有任何 token 时返回 nil。
func (c *Chunker) Split(pages []string) []model.Passage {
	full := strings.Join(pages, "\n")
	toks := tokenizer.Tokenize(full)
	if len(toks) == 0 {
		return nil
	}
	pageOffsets := buildPageOffsets(pages)

	var passages []model.Passage
	start := 0
	for {
		cut := start + c.size
		last := cut >= len(toks)
		if last {
			cut = len(toks)
		} else {
			cut = c.adjustToSentence(full, toks, start, cut)
		}

		firstByte := toks[start].Start
		lastByte := toks[cut-1].End
		overlap := 0
		if len(passages) > 0 {
			overlap = c.overlap
		}
		passages = append(passages, model.Passage{
			Ordinal:       len(passages),
			PageStart:     pageForOffset(pageOffsets, firstByte),
			PageEnd:       pageForOffset(pageOffsets, lastByte-1),
			StartOffset:   firstByte,
			TokenCount:    cut - start,
			OverlapTokens: overlap,
			Text:          full[firstByte:lastByte],
		})

		if cut == len(toks) {
			break
		}
		start = cut - c.overlap
	}
	return passages
}

// adjustToSentence 在 [cut-lookback, cut) 内从后往前找句末 token，
// 找到则在其后断开。断点必须落在 start+overlap 之后，否则窗口无法前进。
func (c *Chunker) adjustToSentence(full string, toks []tokenizer.Token, start, cut int) int {
	floor := cut - c.lookback
	if min := start + c.overlap + 1; floor < min {
		floor = min
	}
	for j := cut - 1; j >= floor; j-- {
		if isSentenceEnd(full, toks, j) {
			return j + 1
		}
	}
	return cut
}

// isSentenceEnd 判断 token j 是否结束一个句子：自身以句末标点收尾
// （宽字符标点如 。自身就是一个 token），或与下一个 token 之间隔着换行。
func isSentenceEnd(full string, toks []tokenizer.Token, j int) bool {
	text := full[toks[j].Start:toks[j].End]
	last, _ := utf8.DecodeLastRuneInString(text)
	if strings.ContainsRune(sentenceEnders, last) {
		return true
	}
	if j+1 < len(toks) && strings.Contains(full[toks[j].End:toks[j+1].Start], "\n") {
		return true
	}
	return false
}

// buildPageOffsets 返回每一页在拼接全文中的起始字节偏移。
func buildPageOffsets(pages []string) []int {
	offsets := make([]int, len(pages))
	off := 0
	for i, page := range pages {
		offsets[i] = off
		off += len(page) + 1 // 页间的 "\n"
	}
	return offsets
}

// pageForOffset 返回字节偏移所在的页码（从 1 起）。
func pageForOffset(pageOffsets []int, offset int) int {
	idx := sort.Search(len(pageOffsets), func(i int) bool {
		return pageOffsets[i] > offset
	})
	if idx == 0 {
		return 1
	}
	return idx
}

// Reconstruct 按序拼接片段并去掉重叠，还原切块前的整篇文本
// （首 token 之前与末 token 之后的空白除外）。
func Reconstruct(passages []model.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	sorted := make([]model.Passage, len(passages))
	copy(sorted, passages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	var sb strings.Builder
	sb.WriteString(sorted[0].Text)
	prevEnd := sorted[0].StartOffset + len(sorted[0].Text)
	for _, p := range sorted[1:] {
		overlapBytes := prevEnd - p.StartOffset
		if overlapBytes < 0 {
			overlapBytes = 0
		}
		if overlapBytes > len(p.Text) {
			overlapBytes = len(p.Text)
		}
		sb.WriteString(p.Text[overlapBytes:])
		if end := p.StartOffset + len(p.Text); end > prevEnd {
			prevEnd = end
		}
	}
	return sb.String()
}

// Package errs 定义了贯穿摄取与问答链路的结构化错误类别。
package errs

import (
	"errors"
	"fmt"
)

// Kind 标识错误所属的类别，处理器据此决定重试与落库行为，
// handler 据此映射稳定的 API 错误码。
type Kind int

const (
	KindUnknown Kind = iota
	// KindDownload 源不可达、超过大小限制或内容类型不受支持。
	KindDownload
	// KindExtraction 文档损坏、加密或格式不受支持，永久失败不重试。
	KindExtraction
	// KindEmbedding 向量化在重试耗尽后仍然失败。
	KindEmbedding
	// KindRetrieval 文档不处于 Ready 状态，或模型版本不匹配。
	KindRetrieval
	// KindSynthesis 大模型生成失败或超时，对服务非致命。
	KindSynthesis
)

// String 返回类别的可读名称。
func (k Kind) String() string {
	switch k {
	case KindDownload:
		return "DownloadError"
	case KindExtraction:
		return "ExtractionError"
	case KindEmbedding:
		return "EmbeddingError"
	case KindRetrieval:
		return "RetrievalError"
	case KindSynthesis:
		return "SynthesisError"
	default:
		return "UnknownError"
	}
}

// Error 是带类别的结构化错误，Reason 面向调用方，Err 保留底层错误链。
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewDownloadError 构造一个下载类错误。
func NewDownloadError(reason string, err error) *Error {
	return &Error{Kind: KindDownload, Reason: reason, Err: err}
}

// NewExtractionError 构造一个文本抽取类错误。
func NewExtractionError(reason string, err error) *Error {
	return &Error{Kind: KindExtraction, Reason: reason, Err: err}
}

// NewEmbeddingError 构造一个向量化类错误。
func NewEmbeddingError(reason string, err error) *Error {
	return &Error{Kind: KindEmbedding, Reason: reason, Err: err}
}

// NewRetrievalError 构造一个检索类错误。
func NewRetrievalError(reason string, err error) *Error {
	return &Error{Kind: KindRetrieval, Reason: reason, Err: err}
}

// NewSynthesisError 构造一个答案生成类错误。
func NewSynthesisError(reason string, err error) *Error {
	return &Error{Kind: KindSynthesis, Reason: reason, Err: err}
}

// KindOf 返回错误链上第一个结构化错误的类别，找不到则返回 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind 判断错误链上是否存在指定类别的结构化错误。
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Reason 返回错误链上结构化错误的 Reason，用于落库的失败原因；
// 非结构化错误退回 err.Error()。
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

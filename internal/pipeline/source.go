package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/model"
	"xiaowen-go/pkg/log"
)

// Resolved 是来源解析的产物：原始字节、身份指纹与展示元数据。
// 指纹是原始字节的 MD5，与来源无关：同一份字节从 URL 或上传进来都是同一篇文档。
type Resolved struct {
	Fingerprint string
	SourceType  string
	SourceURL   string
	FileName    string
	ContentType string
	Data        []byte
}

// Resolver 将摄取请求的来源解析为原始文档字节。
type Resolver struct {
	client  *http.Client
	maxSize int64
	retries int
}

// NewResolver 创建来源解析器。
func NewResolver(cfg config.IngestConfig) *Resolver {
	return &Resolver{
		client:  &http.Client{Timeout: cfg.DownloadTimeout},
		maxSize: cfg.MaxDocumentSize,
		retries: cfg.DownloadRetries,
	}
}

// ResolveUpload 解析直接上传的文件。
func (r *Resolver) ResolveUpload(fileName, contentType string, data []byte) (*Resolved, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("上传内容为空")
	}
	if r.maxSize > 0 && int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("文件大小 %d 超过上限 %d", len(data), r.maxSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Resolved{
		Fingerprint: fingerprintOf(data),
		SourceType:  model.SourceTypeUpload,
		FileName:    fileName,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ResolveURL 下载 URL 指向的文档。
// 瞬时失败（网络错误、5xx）按指数退避重试；4xx 视为永久失败不重试。
// URL 返回 HTML 页面而页面内有 .pdf 链接时，跟随一跳取真正的文档。
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (*Resolved, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("不支持的 URL: %s", rawURL)
	}

	data, contentType, err := r.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	// HTML 落地页：找页面里的 PDF 链接，只跟随一跳
	if strings.Contains(contentType, "text/html") {
		if pdfURL := findPDFLink(data, rawURL); pdfURL != "" {
			log.Infof("[Resolver] URL 返回 HTML 页面，跟随其中的 PDF 链接: %s", pdfURL)
			data, contentType, err = r.download(ctx, pdfURL)
			if err != nil {
				return nil, err
			}
			finalURL = pdfURL
		}
	}

	return &Resolved{
		Fingerprint: fingerprintOf(data),
		SourceType:  model.SourceTypeURL,
		SourceURL:   rawURL,
		FileName:    fileNameFromURL(finalURL, contentType),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// download 执行一次带重试的 GET。
func (r *Resolver) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			delay := 500 * time.Millisecond << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
			log.Warnf("[Resolver] 第 %d 次重试下载: %s", attempt, rawURL)
		}

		data, contentType, retryable, err := r.downloadOnce(ctx, rawURL)
		if err == nil {
			return data, contentType, nil
		}
		lastErr = err
		if !retryable {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("下载在 %d 次重试后仍然失败: %w", r.retries, lastErr)
}

func (r *Resolver) downloadOnce(ctx context.Context, rawURL string) (data []byte, contentType string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("创建下载请求失败: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", true, fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("下载返回状态码 %d", resp.StatusCode)
		// 429 与 5xx 值得重试，其余 4xx 是永久失败
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, "", retry, err
	}
	if r.maxSize > 0 && resp.ContentLength > r.maxSize {
		return nil, "", false, fmt.Errorf("文档大小 %d 超过上限 %d", resp.ContentLength, r.maxSize)
	}

	reader := io.Reader(resp.Body)
	if r.maxSize > 0 {
		reader = io.LimitReader(resp.Body, r.maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", true, fmt.Errorf("读取响应体失败: %w", err)
	}
	if r.maxSize > 0 && int64(len(body)) > r.maxSize {
		return nil, "", false, fmt.Errorf("文档大小超过上限 %d", r.maxSize)
	}
	if len(body) == 0 {
		return nil, "", false, fmt.Errorf("下载内容为空")
	}

	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return body, ct, false, nil
}

// findPDFLink 在 HTML 页面里找第一个 .pdf 链接，返回绝对地址。
func findPDFLink(page []byte, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				if strings.HasSuffix(strings.ToLower(abs.Path), ".pdf") {
					found = abs.String()
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// fileNameFromURL 从 URL 路径推导展示用文件名。
func fileNameFromURL(rawURL, contentType string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	// 路径里没有文件名时按内容类型造一个，扩展名决定 Tika 的解析方式
	switch {
	case strings.Contains(contentType, "pdf"):
		return "document.pdf"
	case strings.Contains(contentType, "html"):
		return "document.html"
	default:
		return "document.bin"
	}
}

func fingerprintOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

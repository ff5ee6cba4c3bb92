// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"xiaowen-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL: cfg.ServerURL,
		client:    &http.Client{},
	}
}

// ExtractPages 调用 Tika 提取逐页文本。
// 请求 XHTML 输出：PDF 等分页格式会带 <div class="page"> 标记，
// 每个标记对应一页；没有分页标记的格式整体作为单页返回。
func (c *Client) ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error) {
	contentType := detectMimeType(fileName)

	req, err := http.NewRequestWithContext(ctx, "PUT", c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	pages, err := parsePages(body)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 响应失败: %w", err)
	}
	return pages, nil
}

// parsePages 从 Tika 的 XHTML 输出中提取逐页文本。
func parsePages(xhtml []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(xhtml))
	if err != nil {
		return nil, err
	}

	var pages []string
	var findPageDivs func(n *html.Node)
	findPageDivs = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "page") {
			var sb strings.Builder
			collectText(n, &sb)
			pages = append(pages, strings.TrimSpace(sb.String()))
			return // 页标记不嵌套
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findPageDivs(c)
		}
	}
	findPageDivs(doc)

	// 没有分页标记（纯文本、HTML、Word 等格式）：整个 body 作为单页
	if len(pages) == 0 {
		var sb strings.Builder
		collectText(doc, &sb)
		pages = []string{strings.TrimSpace(sb.String())}
	}
	return pages, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// collectText 深度遍历节点收集文本，在块级元素结束处补换行。
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "h1", "h2", "h3", "h4", "li", "tr":
			sb.WriteString("\n")
		}
	}
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		// fallback 默认
		return "application/octet-stream"
	}
	return mimeType
}

// Package tools 提供 agent 可调用的外部信息源：新闻搜索与社交舆情。
// 结果允许为空或失败，调用方负责记录，不中断流程。
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Searcher 返回与查询相关的新闻标题/摘要。
type Searcher interface {
	Query(ctx context.Context, text string) ([]string, error)
}

// Social 返回社交平台上的讨论摘要。
type Social interface {
	Query(ctx context.Context, text string) ([]string, error)
}

// StubSearch 离线占位实现，输出固定三条。
type StubSearch struct{}

func (StubSearch) Query(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, nil
	}
	return []string{
		fmt.Sprintf("News headline about %s", q),
		fmt.Sprintf("Analyst commentary on %s", q),
		fmt.Sprintf("Social sentiment summary for %s", q),
	}, nil
}

// StubSocial 离线占位实现。
type StubSocial struct{}

func (StubSocial) Query(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, nil
	}
	return []string{fmt.Sprintf("Trending discussions for %s indicate neutral sentiment.", q)}, nil
}

// SearchFunc 便于测试注入。
type SearchFunc func(ctx context.Context, text string) ([]string, error)

func (f SearchFunc) Query(ctx context.Context, text string) ([]string, error) {
	return f(ctx, text)
}

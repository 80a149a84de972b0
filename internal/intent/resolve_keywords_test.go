package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

func TestResolveKeywordsPrependsCanonicalNameAndAppendsCode(t *testing.T) {
	in := model.Intent{
		StockMention:      "茅台",
		RawSearchKeywords: []string{"茅台走势", "茅台分析"},
		RawRAGKeywords:    []string{"茅台研报"},
		RawDomainKeywords: []string{"茅台新闻"},
	}
	resolved := ResolveKeywords(in, "贵州茅台", "600519")

	assert.Equal(t, []string{"贵州茅台", "贵州茅台走势", "贵州茅台分析", "600519"}, resolved.SearchKeywords)
	assert.Equal(t, []string{"贵州茅台", "贵州茅台研报"}, resolved.RAGKeywords)
	assert.Equal(t, []string{"贵州茅台", "贵州茅台新闻", "600519"}, resolved.DomainKeywords)
}

func TestResolveKeywordsPassesThroughWhenNoEntity(t *testing.T) {
	in := model.Intent{RawSearchKeywords: []string{"a"}, RawRAGKeywords: []string{"b"}, RawDomainKeywords: []string{"c"}}
	resolved := ResolveKeywords(in, "", "")
	assert.Equal(t, []string{"a"}, resolved.SearchKeywords)
	assert.Equal(t, []string{"b"}, resolved.RAGKeywords)
	assert.Equal(t, []string{"c"}, resolved.DomainKeywords)
}

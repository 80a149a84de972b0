package intent

import (
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// ResolveKeywords rewrites the three raw keyword lists once entity
// resolution has produced a canonical name and code: it prepends the
// canonical name (if not already present), appends the code to the
// search/domain lists, and substitutes any raw mention of the user's
// original stock_mention text with the canonical name inside existing
// keywords. Ported from original_source's resolve_keywords.
func ResolveKeywords(in model.Intent, canonicalName, code string) model.ResolvedKeywords {
	if canonicalName == "" && code == "" {
		return model.ResolvedKeywords{
			SearchKeywords: in.RawSearchKeywords,
			RAGKeywords:    in.RawRAGKeywords,
			DomainKeywords: in.RawDomainKeywords,
		}
	}

	search := append([]string(nil), in.RawSearchKeywords...)
	rag := append([]string(nil), in.RawRAGKeywords...)
	domain := append([]string(nil), in.RawDomainKeywords...)

	if in.StockMention != "" && canonicalName != "" && in.StockMention != canonicalName {
		search = replaceMention(search, in.StockMention, canonicalName)
		rag = replaceMention(rag, in.StockMention, canonicalName)
		domain = replaceMention(domain, in.StockMention, canonicalName)
	}

	if canonicalName != "" {
		search = prependIfAbsent(search, canonicalName)
		rag = prependIfAbsent(rag, canonicalName)
		domain = prependIfAbsent(domain, canonicalName)
	}
	if code != "" {
		search = appendIfAbsent(search, code)
		domain = appendIfAbsent(domain, code)
	}

	return model.ResolvedKeywords{SearchKeywords: search, RAGKeywords: rag, DomainKeywords: domain}
}

func prependIfAbsent(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append([]string{v}, list...)
}

func appendIfAbsent(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}

func replaceMention(list []string, mention, canonical string) []string {
	out := make([]string, len(list))
	for i, kw := range list {
		if strings.Contains(kw, mention) {
			out[i] = strings.ReplaceAll(kw, mention, canonical)
		} else {
			out[i] = kw
		}
	}
	return out
}

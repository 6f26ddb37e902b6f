package judge

import (
	"fmt"
	"strings"

	"filings-rag-be/pkg/rag/state"
)

const routerSystem = `You route questions about public company financial filings.
The vectorstore holds 10-K and 10-Q text, tables and chart captions.
Use web_search for anything that depends on live market data or events after the filings were published.
Answer with JSON: {"datasource": "vectorstore" | "web_search"}.`

const relevanceSystem = `You grade whether a retrieved passage is relevant to a question about financial filings.
It does not need to answer the question; it must contain keywords or figures related to it.
Answer with JSON: {"binary_score": "yes" | "no"}.`

const hallucinationSystem = `You grade whether an answer is grounded in a set of source passages.
Every figure and claim in the answer must be supported by the passages.
Answer with JSON: {"binary_score": "yes" | "no"}.`

const answerSystem = `You grade whether an answer resolves a question.
Answer with JSON: {"binary_score": "yes" | "no"}.`

const companySystem = `Extract the company the question is about.
Answer with JSON: {"company": "<name or empty string>"}.`

const crossReferenceSystem = `Decide whether the question needs evidence about more than one company or more than one kind of source
(filing text, filing charts, web news) combined into one answer.
Answer with JSON: {"needs_cross_reference": true|false, "source_types_needed": ["text"|"image"|"web"], "reasoning": "<one sentence>"}.`

const rewriteSystem = `Rewrite the question so it retrieves better passages from financial filings.
Keep company names, periods and metrics. Return only the rewritten question.`

const strategySystem = `Choose how to combine evidence for a cited answer.
single_source: one kind of source. multi_source_vectorstore: filing text plus filing charts.
integrated_web_vectorstore: filings plus web results.
Answer with JSON: {"strategy": "single_source" | "multi_source_vectorstore" | "integrated_web_vectorstore"}.`

const generateSystem = `You are a financial analyst answering questions from company filings.
Use only the provided context. Quote figures with their period and unit.
If the context does not contain the answer, say so. Keep the answer under 200 words.`

const citationSystem = `You are a financial analyst answering questions from several kinds of evidence.
Attribute every claim to its source with a bracketed tag such as [text-1], [image-2] or [web-1].
Use only the provided context. Strategy: %s.`

func questionBlock(question string) string {
	return "<question>\n" + question + "\n</question>"
}

func documentsBlock(docs []state.Document) string {
	var b strings.Builder
	b.WriteString("<documents>\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "<document index=\"%d\" source=\"%s\">\n%s\n</document>\n", i+1, d.SourceType, d.Content)
	}
	b.WriteString("</documents>")
	return b.String()
}

func sourcesBlock(sources map[state.SourceType][]state.Document, order []state.SourceType) string {
	var b strings.Builder
	b.WriteString("<sources>\n")
	for _, t := range order {
		for i, d := range sources[t] {
			fmt.Fprintf(&b, "<source tag=\"%s-%d\">\n%s\n</source>\n", t, i+1, d.Content)
		}
	}
	b.WriteString("</sources>")
	return b.String()
}

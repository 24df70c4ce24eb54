package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/switchboard/internal/dispatch"
)

// KnowledgeName is the registered name of the general knowledge handler.
const KnowledgeName = "Knowledge"

var knowledgeBase = map[string]string{
	"why is the sky blue":        "The sky is blue because of Rayleigh scattering: air molecules scatter blue light more than the other colours.",
	"what is ai":                 "Artificial intelligence (AI) is technology that lets machines simulate human intelligence: learning, reasoning and perception.",
	"how does the internet work": "The internet is a global network of computers that exchange data through protocols such as TCP/IP.",
	"what is python":             "Python is an interpreted, object-oriented programming language known for its clear, readable syntax.",
	"what is linux":              "Linux is an open-source Unix-like operating system, widely used on servers and for development.",
	"what is go":                 "Go is a statically typed, compiled programming language designed at Google, known for its simplicity and built-in concurrency.",
	"how does a computer work":   "A computer processes information with its CPU, keeps data in memory (RAM and disk), and talks to the world through input and output devices.",
}

var (
	questionWords = newWordSet(
		"why", "how", "what is", "what's", "what are", "explain", "define",
		"who is", "what does",
	)
	techWords = newWordSet(
		"computer", "internet", "software", "programming", "ai",
		"artificial intelligence",
	)
	generalWords = newWordSet("who", "what", "where", "when", "how many")

	knowledgeBonusWords = newWordSet("why", "how", "what is", "what's")
	definitionWords     = newWordSet("what is", "what's", "what are", "define", "what does")
	whyWords            = newWordSet("why")
	howWords            = newWordSet("how")
	workWords           = newWordSet("work", "works", "working")
	aiWords             = newWordSet("ai", "artificial intelligence")
	goWords             = newWordSet("go", "golang")
)

// Knowledge answers general questions from a small built-in knowledge base.
type Knowledge struct{}

var _ dispatch.Handler = Knowledge{}

// NewKnowledge creates the general knowledge handler.
func NewKnowledge() Knowledge { return Knowledge{} }

func (Knowledge) Name() string           { return KnowledgeName }
func (Knowledge) Specialization() string { return "General knowledge" }

func (Knowledge) CanHandle(query string) bool {
	q := normalizeQuestion(query)
	if _, ok := knowledgeBase[q]; ok {
		return true
	}
	return questionWords.match(q) || techWords.match(q) || generalWords.match(q)
}

func (Knowledge) Process(_ context.Context, query string) (string, error) {
	q := normalizeQuestion(query)
	if answer, ok := knowledgeBase[q]; ok {
		return answer, nil
	}

	question := strings.TrimSpace(query)
	switch {
	case whyWords.match(q):
		return answerWhy(q, question), nil
	case howWords.match(q):
		return answerHow(q, question), nil
	case definitionWords.match(q):
		return answerDefinition(q, question), nil
	case techWords.match(q):
		return "That sounds like a technology question. I can explain the basics of computing, programming and AI.", nil
	default:
		return fmt.Sprintf("Interesting question: %q. I can help with general knowledge, science and technology.", question), nil
	}
}

// ScoringBonus favours open questions.
func (Knowledge) ScoringBonus(query string) float64 {
	if knowledgeBonusWords.match(query) {
		return 0.8
	}
	return 0
}

func (Knowledge) ConfidenceBonus(string, string) float64 { return 0 }

func answerWhy(q, question string) string {
	switch {
	case strings.Contains(q, "sky"):
		return knowledgeBase["why is the sky blue"]
	case strings.Contains(q, "computer"):
		return "Computers work because electronic circuits process information in binary, as ones and zeros."
	default:
		return fmt.Sprintf("Good question! %q touches on complex ideas; a specialised source will give the most precise answer.", question)
	}
}

func answerHow(q, question string) string {
	if workWords.match(q) {
		switch {
		case strings.Contains(q, "computer"):
			return knowledgeBase["how does a computer work"]
		case strings.Contains(q, "internet"):
			return knowledgeBase["how does the internet work"]
		}
	}
	return fmt.Sprintf("To understand %q, break it down into the steps and mechanisms involved.", question)
}

func answerDefinition(q, question string) string {
	switch {
	case aiWords.match(q):
		return knowledgeBase["what is ai"]
	case strings.Contains(q, "python"):
		return knowledgeBase["what is python"]
	case strings.Contains(q, "linux"):
		return knowledgeBase["what is linux"]
	case goWords.match(q):
		return knowledgeBase["what is go"]
	default:
		return fmt.Sprintf("%q needs a precise definition that I don't have yet.", question)
	}
}

// normalizeQuestion lowercases query and strips surrounding punctuation.
func normalizeQuestion(query string) string {
	return strings.Trim(dispatch.NormalizeQuery(query), "?!. ")
}

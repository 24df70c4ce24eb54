package assistant

import (
	"regexp"
	"strings"
)

type smallTalkRule struct {
	re       *regexp.Regexp
	reply    string
	farewell bool
}

func phrases(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)^\W*(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Rules match at the start of the query.
var smallTalkRules = []smallTalkRule{
	{
		re:    phrases("hello", "hi", "hey", "good morning", "good afternoon", "good evening"),
		reply: "Hello! Ask me to calculate something, check the system, or answer a question.",
	},
	{
		re:    phrases("thanks", "thank you", "cheers"),
		reply: "You're welcome! Anything else?",
	},
	{
		re:       phrases("bye", "goodbye", "see you", "good night"),
		reply:    "Goodbye! See you soon.",
		farewell: true,
	},
	{
		re:    phrases("who are you", "what are you", "introduce yourself"),
		reply: "I'm switchboard: I route each question to the specialised handler best suited to answer it.",
	},
	{
		re: phrases("help", "what can you do"),
		reply: "I can:\n" +
			"- evaluate arithmetic like 2+3, sqrt(16) or sin(30)\n" +
			"- report cpu, memory, disk, network and process status\n" +
			"- answer general why/how/what-is questions",
	},
}

// maxSmallTalkWords bounds how long a query may be and still count as
// small talk, so "hi, what is the cpu load" goes to the handlers.
const maxSmallTalkWords = 4

// smallTalk returns a canned reply for greetings and other chit-chat.
// Queries with digits always go to the handlers.
func smallTalk(query string) (reply string, farewell, ok bool) {
	if len(strings.Fields(query)) > maxSmallTalkWords || strings.ContainsAny(query, "0123456789") {
		return "", false, false
	}
	for _, r := range smallTalkRules {
		if r.re.MatchString(query) {
			return r.reply, r.farewell, true
		}
	}
	return "", false, false
}

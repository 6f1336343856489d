package intent

// defaultExemplars returns the seed phrases each category is scored against.
// A query's category score is its best cosine similarity to any exemplar in
// that category, so phrasing variety matters more than volume.
func defaultExemplars() map[Intent][]string {
	return map[Intent][]string{
		IntentRAG: {
			"what does the textbook say about photosynthesis",
			"explain the chain rule from this week's material",
			"summarize chapter three of the course reader",
			"what is the definition of supply and demand",
			"how does the krebs cycle work according to the lecture notes",
			"find the section about the french revolution",
		},
		IntentConversational: {
			"hi there",
			"thanks, that was helpful",
			"can you encourage me, this class is hard",
			"i'm feeling stuck on my homework",
			"good morning, ready to study",
			"tell me something interesting",
		},
		IntentSessionMemory: {
			"what did you just say about that",
			"repeat the last explanation",
			"go back to the previous example",
			"what were we talking about",
			"continue from where we left off",
			"can you rephrase your earlier answer",
		},
		IntentPlatformAction: {
			"reset my progress for this course",
			"change my notification settings",
			"show my quiz scores",
			"enroll me in the biology course",
			"delete my account data",
			"switch to dark mode",
		},
	}
}

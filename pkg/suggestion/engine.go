package suggestion

// Follow-up prompts offered to the user, keyed by mood. Anything without its own bucket
// falls back to defaultBucket.
var (
	sadBucket = []string{
		"Can you help me find some positive memories?",
		"What usually helps when I'm feeling down?",
		"Tell me about a time I felt truly happy",
	}
	anxiousBucket = []string{
		"What are some calming memories I have?",
		"How can I find peace in this moment?",
		"What grounds me when I feel overwhelmed?",
	}
	defaultBucket = []string{
		"What patterns do you notice in my memories?",
		"How have I grown recently?",
		"What should I reflect on today?",
		"Help me understand my emotions better",
	}
)

var buckets = map[string][]string{
	"sad":     sadBucket,
	"anxious": anxiousBucket,
}

// Suggest returns the follow-up prompts for mood. The result is a fresh slice the caller may keep.
func Suggest(mood string) []string {
	bucket, ok := buckets[mood]
	if !ok {
		bucket = defaultBucket
	}
	return append([]string(nil), bucket...)
}

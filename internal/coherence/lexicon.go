package coherence

// defaultEducationalVocabulary short-circuits the gate: domain content is
// accepted regardless of similarity to recent context.
var defaultEducationalVocabulary = []string{
	"math", "maths", "algebra", "geometry", "fraction", "fractions",
	"decimal", "multiply", "multiplication", "divide", "division",
	"addition", "subtraction", "equation", "equations", "number", "numbers",
	"science", "biology", "chemistry", "physics", "photosynthesis",
	"molecule", "atom", "energy", "gravity", "planet", "planets",
	"history", "geography", "grammar", "vocabulary", "spelling", "sentence",
	"paragraph", "essay", "reading", "writing", "book", "chapter", "story",
	"homework", "worksheet", "problem", "problems", "answer", "question",
	"questions", "lesson", "practice", "quiz", "test", "study", "learn",
	"teacher", "tutor", "school", "grade", "subject", "example", "explain",
}

// defaultHouseholdChatter marks fragments as likely background household
// speech when similarity to the conversation is already low.
var defaultHouseholdChatter = []string{
	"dinner", "lunch", "breakfast", "snack", "kitchen", "table",
	"mom", "mommy", "dad", "daddy", "grandma", "grandpa",
	"brother", "sister", "dog", "cat", "puppy",
	"tv", "television", "phone", "tablet", "remote",
	"bedtime", "shower", "bath", "laundry", "groceries",
	"car", "upstairs", "downstairs", "outside", "door",
}

var defaultStopwords = []string{
	"the", "an", "and", "or", "but", "if", "then", "is", "are", "was",
	"were", "be", "been", "being", "to", "of", "in", "on", "at", "for",
	"with", "about", "as", "it", "its", "this", "that", "these", "those",
	"you", "he", "she", "we", "they", "me", "my", "your", "his", "her",
	"our", "their", "what", "which", "who", "how", "why", "when", "where",
	"do", "does", "did", "can", "could", "will", "would", "should", "have",
	"has", "had", "not", "no", "yes", "so", "just", "really", "very",
	"too", "also", "there", "here", "now", "get", "got", "go", "going",
	"like", "okay", "ok", "right", "well", "um", "uh",
}

package prompt

// Templates use Go template syntax, which is what langchaingo prompts render by default.
const (
	rewriterSystem = `You are a question re-writer that converts an input question to a better version that is optimized for retrieval. Look at the input and try to reason about the underlying semantic intent / meaning.`

	rewriterHuman = "Here is the initial question: \n\n {{.question}} \n Formulate an improved question."

	classifierSystem = "You are a classifier that determines if a question and retrieved documents are on-topic."

	classifierHuman = "Question: {{.question}}\n\nDocuments: {{.documents}}\n\nIs this on-topic? Respond with 'on-topic' or 'off-topic'."

	rerankHuman = `Given the question and documents, rank the following documents in order of preference (1st, 2nd, 3rd) based on the relevance to the question.
Provide your ranking as "1st preference: <complete chunk>", "2nd preference: <complete chunk>", and "3rd preference: <complete chunk>".
If there are fewer than 3 relevant documents, skip ranking those that are not useful.
Please give the complete chunks.

Question: {{.question}}
Documents:
{{.documents}}`

	answerHuman = "Answer the question based only on the following context:\n{{.context}}\n\nQuestion: {{.question}}. Don't mention preference or context while generating the answer."
)

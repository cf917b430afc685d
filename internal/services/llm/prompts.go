package llm

// RelevancePrompt instructs the relevance model to return technical ranges.
const RelevancePrompt = `You review transcripts of recorded software demos and meetings.
Identify the time ranges where technical content is discussed: product behaviour, bugs, designs, code, architecture or decisions.
Skip greetings, small talk and scheduling.
Respond with JSON only, in this shape:
{"relevant_segments":[{"start":<seconds>,"end":<seconds>}],"technical_percentage":<0-100>}
Timestamps are in seconds from the start of the recording and must come from the transcript markers.`

const defaultSegmentInstruction = `You are a senior technical writer. Produce clear, accurate markdown documentation for one segment of a recorded software demonstration.`

const frameReferenceRule = `The screenshots are numbered in the order they are attached, starting at 1. When a statement is grounded in a screenshot, cite it inline as [Frame N]. Do not invent frames that were not provided.`

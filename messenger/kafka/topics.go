package kafka

import "fmt"

// Topic naming: a source-documents and completed-documents topic per
// pipeline, an events topic per pipeline keyed by run id, and an optional
// dead-letter topic per pipeline.

func sourceTopic(pipeline string) string {
	return fmt.Sprintf("lucille.%s.source", pipeline)
}

func completedTopic(pipeline string) string {
	return fmt.Sprintf("lucille.%s.completed", pipeline)
}

func eventsTopic(pipeline, runID string) string {
	return fmt.Sprintf("lucille.%s.events.%s", pipeline, runID)
}

func deadLetterTopic(pipeline string) string {
	return fmt.Sprintf("lucille.%s.dlq", pipeline)
}

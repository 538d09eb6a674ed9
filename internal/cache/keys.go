package cache

import "fmt"

func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s", examID)
}

func QuestionKey(questionID string) string {
	return fmt.Sprintf("question:%s", questionID)
}

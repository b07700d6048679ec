package safe

import (
	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
)

// SafeGo starts a goroutine that recovers from panic,
// so a misbehaving handler cannot take the whole gateway down.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// Recover is the defer-style variant for goroutines we do not own the launch of.
func Recover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("[%s] panic recovered: %v", tag, r)
	}
}

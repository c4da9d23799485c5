package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	logOnce sync.Once
	logOut  *log.Logger
)

// Logger returns the process-wide line logger. Output is one JSON object
// per line on stdout, no prefix or flags.
func Logger() *log.Logger {
	logOnce.Do(func() {
		logOut = log.New(os.Stdout, "", 0)
	})
	return logOut
}

// LogRequest writes one structured JSON log line. A "ts" field is stamped
// when the caller did not set one.
func LogRequest(fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	if _, ok := fields["ts"]; !ok {
		fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log line not serializable"}`)
		return
	}
	Logger().Println(string(line))
}

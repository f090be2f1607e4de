package conf

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	filename "github.com/keepeye/logrus-filename"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

const logFileName = "crcseg.log"

var (
	Log       *logrus.Logger
	IsTesting bool
	logWriter io.Closer
)

func init() {
	InitLogger()
}

// InitLogger resets Log to the console defaults. SetupLogOutput applies the
// file/console settings once the configuration is known.
func InitLogger() {
	Log = logrus.New()
	filenameHook := filename.NewHook()
	filenameHook.Field = "file"
	Log.AddHook(filenameHook)

	Log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
		FullTimestamp:   true,
	})

	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			IsTesting = true
			break
		}
	}
	if IsTesting {
		Log.SetOutput(io.Discard)
	}
}

func SetupLogOutput(c BasicConf) {
	if c.Debug {
		Log.SetLevel(logrus.DebugLevel)
	}
	if IsTesting {
		return
	}
	if !c.FileLog {
		if c.ConsoleLog {
			Log.SetOutput(os.Stdout)
		}
		return
	}

	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		Log.Warnf("Failed to create log dir %s, using default stderr: %v", c.LogDir, err)
		return
	}
	file := filepath.Join(c.LogDir, logFileName)
	w, err := rotatelogs.New(
		file+".%Y-%m-%d_%H-%M-%S",
		rotatelogs.WithLinkName(file),
		rotatelogs.WithRotationTime(time.Hour*time.Duration(c.RotateTime)),
		rotatelogs.WithMaxAge(time.Hour*time.Duration(c.MaxAge)),
	)
	if err != nil {
		Log.Warnf("Failed to log to file, using default stderr: %v", err)
		return
	}
	logWriter = w
	if c.ConsoleLog {
		Log.SetOutput(io.MultiWriter(os.Stdout, w))
	} else {
		Log.SetOutput(w)
	}
}

func CloseLogger() {
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}

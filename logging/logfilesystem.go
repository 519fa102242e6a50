package logging

import (
	"os"
)

// LogFile appends raw bytes to a log file.
type LogFile interface {
	Append(content []byte) (err error)
}

// LogFileSystem abstracts directory creation and log file opening, so tests
// can capture log output in memory.
type LogFileSystem interface {
	MkDir(dirname string) error
	Open(name string) (f LogFile, err error)
}

// OsFileSystem is the LogFileSystem over the real filesystem.
type OsFileSystem struct{}

func (fs *OsFileSystem) MkDir(name string) error {
	return os.MkdirAll(name, 0777)
}

func (fs *OsFileSystem) Open(name string) (LogFile, error) {
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &osLogFile{f: f}, nil
}

type osLogFile struct {
	f *os.File
}

func (lf *osLogFile) Append(content []byte) (err error) {
	_, err = lf.f.Write(content)
	return
}

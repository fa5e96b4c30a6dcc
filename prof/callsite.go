package prof

import (
	"bytes"
	"path"
	"runtime"
	"strconv"
	"sync"
)

// callSites caches identifiers by program counter.
var callSites sync.Map

// CallSite returns a stable region identifier for a source location, in
// the form "dir/file.go:line". skip is the number of stack frames to skip:
// 0 names the caller of CallSite.
func CallSite(skip int) string {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return "unknown"
	}
	pc := pcs[0]
	if id, ok := callSites.Load(pc); ok {
		return id.(string)
	}

	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	id := path.Base(path.Dir(frame.File)) + "/" + path.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
	callSites.Store(pc, id)
	return id
}

// goroutineID extracts the current goroutine ID using runtime.Stack.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]

	// Stack format: "goroutine 123 [running]:\n..."
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}

	gid, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

package server

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telfs/config"
	"telfs/internal/fsgate"
	"telfs/internal/metrics"
	"telfs/internal/netpoll"
	"telfs/util"
)

// ── fakes ────────────────────────────────────────────────────────────

type fakeSocket struct {
	fd     int
	in     [][]byte
	eof    bool
	out    bytes.Buffer
	closed bool

	// writeLimit caps the bytes a single Write accepts (0 = no cap).
	writeLimit int
	writeErr   error
}

func (f *fakeSocket) FD() int { return f.fd }

func (f *fakeSocket) Read(p []byte) (int, error) {
	if len(f.in) == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, netpoll.ErrWouldBlock
	}
	n := copy(p, f.in[0])
	if n == len(f.in[0]) {
		f.in = f.in[1:]
	} else {
		f.in[0] = f.in[0][n:]
	}
	return n, nil
}

func (f *fakeSocket) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.writeLimit > 0 && len(p) > f.writeLimit {
		f.out.Write(p[:f.writeLimit])
		return f.writeLimit, netpoll.ErrWouldBlock
	}
	return f.out.Write(p)
}

func (f *fakeSocket) Close() error {
	f.closed = true
	return nil
}

type fakeSelector struct {
	interest map[int]netpoll.Event
}

func (f *fakeSelector) Add(fd int, ev netpoll.Event) error {
	if _, ok := f.interest[fd]; ok {
		return fmt.Errorf("fd %d already added", fd)
	}
	f.interest[fd] = ev
	return nil
}

func (f *fakeSelector) Modify(fd int, ev netpoll.Event) error {
	if _, ok := f.interest[fd]; !ok {
		return fmt.Errorf("fd %d not added", fd)
	}
	f.interest[fd] = ev
	return nil
}

func (f *fakeSelector) Remove(fd int) { delete(f.interest, fd) }

// ── harness ──────────────────────────────────────────────────────────

type harness struct {
	t      *testing.T
	srv    *Server
	sel    *fakeSelector
	fs     afero.Fs
	nextFD int
	logs   bytes.Buffer
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	h := &harness{t: t, sel: &fakeSelector{interest: map[int]netpoll.Event{}}, fs: afero.NewMemMapFs(), nextFD: 10}
	logger := util.NewLogger(3)
	logger.SetOutput(&h.logs)
	h.srv = New(cfg, fsgate.New(h.fs, fsgate.WithMaxReadSize(cfg.MaxFileSize)), logger, metrics.New())
	h.srv.sel = h.sel
	return h
}

type client struct {
	h    *harness
	sock *fakeSocket
	conn *Conn
	// greeting holds everything written on accept.
	greeting string
}

func (h *harness) connect(addr string) *client {
	h.t.Helper()
	sock := &fakeSocket{fd: h.nextFD}
	h.nextFD++
	h.srv.register(sock, addr)
	c, ok := h.srv.reg.Get(sock.fd)
	require.True(h.t, ok, "connection not registered")
	cl := &client{h: h, sock: sock, conn: c, greeting: sock.out.String()}
	sock.out.Reset()
	return cl
}

// send delivers each chunk as a separate readiness event and returns
// everything written back.
func (cl *client) send(chunks ...string) string {
	cl.sock.out.Reset()
	for _, ch := range chunks {
		cl.sock.in = append(cl.sock.in, []byte(ch))
		cl.h.srv.service(cl.conn, netpoll.Ready{FD: cl.sock.fd, Readable: true})
	}
	return cl.sock.out.String()
}

// reply strips the trailing prompt from out.
func (cl *client) reply(out string) string {
	return strings.TrimSuffix(out, cl.promptText())
}

func (cl *client) promptText() string {
	return cl.conn.Prefix() + "->" + "server" + strings.TrimSuffix(cl.conn.cwd, "/") + ": "
}

func (cl *client) ls() string {
	return cl.reply(cl.send("ls\n"))
}

// ── tests ────────────────────────────────────────────────────────────

func TestAccept_GreetsAndPrompts(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	assert.Equal(t, greeting+"(user@10.0.0.1:4000)->server: ", cl.greeting)
	assert.Equal(t, netpoll.Readable, h.sel.interest[cl.sock.fd])
	assert.Equal(t, 1, h.srv.reg.Len())
	assert.EqualValues(t, 1, h.srv.metrics.ActiveConnections())
}

func TestScenario_Notes(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	cl.send("mkdir notes\n")
	out := cl.send("cd notes\n")
	assert.Equal(t, "(user@10.0.0.1:4000)->server/notes: ", out)
	cl.send("touch todo.txt\n")
	assert.Equal(t, "todo.txt\n", cl.ls())
}

func TestIsolation_ResponsesAndState(t *testing.T) {
	h := newHarness(t)
	a := h.connect("10.0.0.1:4000")
	b := h.connect("10.0.0.2:4000")

	a.send("mkdir notes\n", "cd notes\n")
	b.sock.out.Reset()

	out := a.send("ls\n")
	assert.Contains(t, out, "server/notes")
	assert.Empty(t, b.sock.out.String(), "B must not see A's output")

	assert.Equal(t, "/notes", a.conn.WorkingPath())
	assert.Equal(t, "/", b.conn.WorkingPath(), "B's working path must not follow A")
	assert.Equal(t, "notes\n", b.ls())
}

func TestIsolation_SameHostDifferentPorts(t *testing.T) {
	h := newHarness(t)
	a := h.connect("10.0.0.1:4000")
	b := h.connect("10.0.0.1:4001")

	a.send("nick alice\n")
	assert.Empty(t, b.sock.out.String())
	assert.Equal(t, "user", b.conn.Nickname())
	assert.Equal(t, "(alice@10.0.0.1:4000)", a.conn.Prefix())
}

func TestChangeDir(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		target  string
		want    string
		wantErr string
	}{
		{"dotdot at root clamps", "/", "..", "/", ""},
		{"dotdot", "/a/b", "..", "/a", ""},
		{"home", "/a/b", "~", "/", ""},
		{"relative", "/a", "b", "/a/b", ""},
		{"absolute", "/a", "/c", "/c", ""},
		{"optimistic", "/", "ghost", "/ghost", ""},
		{"escape", "/", "../..", "/", "error: cd: ../..: path escapes server root\n"},
		{"nested escape", "/a", "b/../../..", "/a", "error: cd: b/../../..: path escapes server root\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cl := h.connect("10.0.0.1:4000")
			cl.conn.cwd = tt.from
			out := cl.send("cd " + tt.target + "\n")
			assert.Equal(t, tt.want, cl.conn.WorkingPath())
			assert.Equal(t, tt.wantErr, cl.reply(out))
		})
	}
}

func TestTouch_Idempotent(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	assert.Empty(t, cl.reply(cl.send("touch x\n")))
	assert.Empty(t, cl.reply(cl.send("touch x\n")))
	assert.Equal(t, "x\n", cl.ls())
}

func TestMkdirRm_RoundTrip(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("touch keep\n")
	before := cl.ls()

	cl.send("mkdir d\n")
	assert.Equal(t, "d keep\n", cl.ls())
	cl.send("rm d\n")
	assert.Equal(t, before, cl.ls())
}

func TestMkdir_Exists(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("mkdir d\n")
	assert.Equal(t, "error: mkdir: d: already exists\n", cl.reply(cl.send("mkdir d\n")))
}

func TestRm_MissingIsSilentRootRefused(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	assert.Empty(t, cl.reply(cl.send("rm ghost\n")))
	assert.Equal(t, "error: rm: /: permission denied\n", cl.reply(cl.send("rm /\n")))
}

func TestRm_WorkingDirectoryMovesUp(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("mkdir a\n", "cd a\n", "mkdir b\n", "cd b\n")
	require.Equal(t, "/a/b", cl.conn.WorkingPath())

	cl.send("rm /a\n")
	assert.Equal(t, "/", cl.conn.WorkingPath())
}

func TestSplitRead_SameAsSingleRead(t *testing.T) {
	h := newHarness(t)
	one := h.connect("10.0.0.1:4000")
	two := h.connect("10.0.0.2:4000")
	one.send("touch a\n")

	whole := one.send("ls\n")
	split := two.send("l", "s", "\r\n")
	assert.Equal(t, one.reply(whole), two.reply(split))
}

func TestSplitRead_NoPromptUntilLineComplete(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	assert.Empty(t, cl.send("l"))
	assert.Equal(t, 1, cl.conn.input.Buffered())
}

func TestCopy(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("mkdir b\n", "touch a\n")

	assert.Empty(t, cl.reply(cl.send("copy a b\n")))
	cl.send("cd b\n")
	assert.Equal(t, "a\n", cl.ls())

	// dstDir resolves like a cd target
	cl.send("mkdir sub\n")
	assert.Empty(t, cl.reply(cl.send("copy sub ~\n")))
	cl.send("cd ~\n")
	assert.Equal(t, "a b sub\n", cl.ls())
}

func TestCopy_MissingSourceIsNoOp(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("mkdir b\n")

	assert.Empty(t, cl.reply(cl.send("copy a b\n")))
	ok, err := afero.Exists(h.fs, "/b/a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.srv.reg.Len())
}

func TestCopy_Errors(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("touch a\n")

	assert.Equal(t, "error: usage: copy <src> <dstDir>\n", cl.reply(cl.send("copy a\n")))
	assert.Equal(t, "error: copy: nowhere: not found\n", cl.reply(cl.send("copy a nowhere\n")))
}

func TestCat(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/readme", []byte("line one\nline two"), 0o644))
	cl := h.connect("10.0.0.1:4000")

	assert.Equal(t, "line one\nline two\n", cl.reply(cl.send("cat readme\n")))
}

func TestCat_MissingKeepsConnection(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	out := cl.send("cat missing.txt\n")
	assert.Equal(t, "error: cat: missing.txt: not found\n", cl.reply(out))
	assert.True(t, strings.HasSuffix(out, ": "), "prompt should follow the error")
	assert.False(t, cl.sock.closed)
	assert.Equal(t, 1, h.srv.reg.Len())
}

func TestCat_TooLargeAndDirectory(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MaxFileSize = 8 })
	require.NoError(t, afero.WriteFile(h.fs, "/big", []byte("0123456789"), 0o644))
	require.NoError(t, h.fs.Mkdir("/dir", 0o755))
	cl := h.connect("10.0.0.1:4000")

	assert.Equal(t, "error: cat: big: file too large\n", cl.reply(cl.send("cat big\n")))
	assert.Equal(t, "error: cat: dir: is a directory\n", cl.reply(cl.send("cat dir\n")))
}

func TestSum(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/empty", nil, 0o644))
	cl := h.connect("10.0.0.1:4000")

	// BLAKE2b-256 of the empty input
	want := "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8  empty\n"
	assert.Equal(t, want, cl.reply(cl.send("sum empty\n")))
}

func TestHelp_ListsEveryVerb(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	out := cl.reply(cl.send("--help\n"))
	for _, v := range verbs {
		assert.Contains(t, out, "\t"+commands[v].usage)
	}
	assert.Equal(t, len(verbs), strings.Count(out, "\n"))
}

func TestUnknownAndEmptyLines(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")

	assert.Empty(t, cl.reply(cl.send("frobnicate now\n")))
	assert.Empty(t, cl.reply(cl.send("   \n")))
	assert.EqualValues(t, 1, h.srv.metrics.CommandsRejected())
	assert.Contains(t, h.logs.String(), "ignoring unknown command")
}

func TestWrongArgCount(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"touch\n", "error: usage: touch <name>\n"},
		{"ls extra\n", "error: usage: ls\n"},
		{"nick\n", "error: usage: nick <name>\n"},
		{"cd a b\n", "error: usage: cd <dir|..|~>\n"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.line), func(t *testing.T) {
			h := newHarness(t)
			cl := h.connect("10.0.0.1:4000")
			assert.Equal(t, tt.want, cl.reply(cl.send(tt.line)))
		})
	}
}

func TestReadOnly_DeniesMutations(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.ReadOnly = true })
	require.NoError(t, afero.WriteFile(h.fs, "/a", []byte("x"), 0o644))
	cl := h.connect("10.0.0.1:4000")

	for _, line := range []string{"touch b", "mkdir d", "rm a", "copy a a2"} {
		verb := strings.Fields(line)[0]
		assert.Equal(t, "error: "+verb+": permission denied\n", cl.reply(cl.send(line+"\n")), line)
	}
	assert.Equal(t, "a\n", cl.ls())
	assert.Equal(t, "x\n", cl.reply(cl.send("cat a\n")))
}

func TestLineTooLong(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MaxLineLength = 8 })
	cl := h.connect("10.0.0.1:4000")

	out := cl.send("touch averyverylongname\nls\n")
	assert.True(t, strings.HasPrefix(out, "error: line too long\n"), out)
	ok, _ := afero.Exists(h.fs, "/averyverylongname")
	assert.False(t, ok)
}

func TestExit_ClosesOnlyThatConnection(t *testing.T) {
	h := newHarness(t)
	a := h.connect("10.0.0.1:4000")
	b := h.connect("10.0.0.2:4000")

	out := a.send("exit\n")
	assert.Empty(t, out, "exit sends nothing")
	assert.True(t, a.sock.closed)
	_, watched := h.sel.interest[a.sock.fd]
	assert.False(t, watched)

	assert.False(t, b.sock.closed)
	assert.Equal(t, 1, h.srv.reg.Len())
	assert.EqualValues(t, 1, h.srv.metrics.ActiveConnections())
	assert.Contains(t, h.logs.String(), "client logged out")
}

func TestExit_StopsProcessingRemainingLines(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.send("exit\ntouch late\n")
	ok, _ := afero.Exists(h.fs, "/late")
	assert.False(t, ok)
}

func TestPeerClose_TearsDown(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.sock.eof = true
	h.srv.service(cl.conn, netpoll.Ready{FD: cl.sock.fd, Hangup: true})

	assert.True(t, cl.sock.closed)
	assert.Zero(t, h.srv.reg.Len())
	assert.Contains(t, h.logs.String(), "client disconnected")
	assert.Zero(t, h.srv.metrics.ErrorCount())
}

func TestPartialWrite_QueuedAndFlushed(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.sock.writeLimit = 4

	out := cl.send("--help\n")
	assert.Len(t, out, 4)
	assert.Equal(t, netpoll.Readable|netpoll.Writable, h.sel.interest[cl.sock.fd])
	require.Positive(t, cl.conn.Pending())

	cl.sock.writeLimit = 0
	h.srv.service(cl.conn, netpoll.Ready{FD: cl.sock.fd, Writable: true})
	assert.Zero(t, cl.conn.Pending())
	assert.Equal(t, netpoll.Readable, h.sel.interest[cl.sock.fd])
	assert.True(t, strings.HasPrefix(cl.sock.out.String(), "\t--help"))
	assert.True(t, strings.HasSuffix(cl.sock.out.String(), "->server: "))
}

func TestExit_WaitsForPendingOutput(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.sock.writeLimit = 4

	cl.send("--help\nexit\n")
	assert.False(t, cl.sock.closed, "pending output must drain first")

	cl.sock.writeLimit = 0
	h.srv.service(cl.conn, netpoll.Ready{FD: cl.sock.fd, Writable: true})
	assert.True(t, cl.sock.closed)
}

func TestWriteError_TearsDown(t *testing.T) {
	h := newHarness(t)
	cl := h.connect("10.0.0.1:4000")
	cl.sock.writeErr = fmt.Errorf("boom")

	cl.send("ls\n")
	assert.True(t, cl.sock.closed)
	assert.Zero(t, h.srv.reg.Len())
	assert.EqualValues(t, 1, h.srv.metrics.ErrorCount())
}

func TestTeardown_AllConnections(t *testing.T) {
	h := newHarness(t)
	a := h.connect("10.0.0.1:4000")
	b := h.connect("10.0.0.2:4000")

	for _, c := range h.srv.reg.All() {
		h.srv.teardown(c, nil)
	}
	assert.True(t, a.sock.closed)
	assert.True(t, b.sock.closed)
	assert.Zero(t, h.srv.reg.Len())
	assert.Empty(t, h.sel.interest)
}

package server

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"

	"telfs/internal/errors"
	"telfs/internal/navigator"
	"telfs/internal/perm"
)

// command is one entry of the verb table.
type command struct {
	usage   string
	summary string
	minArgs int
	maxArgs int
	perm    string
	run     func(s *Server, c *Conn, args []string) (string, error)
}

// verbs lists the commands in the order --help shows them.
var verbs = []string{"--help", "ls", "cd", "touch", "mkdir", "rm", "copy", "cat", "sum", "nick", "exit"}

var commands map[string]*command

// Populated in init: cmdHelp reads the table it belongs to.
func init() {
	commands = map[string]*command{
		"--help": {usage: "--help", summary: "show this help", run: cmdHelp},
		"ls":     {usage: "ls", summary: "view all files and directories", perm: perm.Read, run: cmdList},
		"cd":     {usage: "cd <dir|..|~>", summary: "change directory", minArgs: 1, maxArgs: 1, perm: perm.Read, run: cmdChangeDir},
		"touch":  {usage: "touch <name>", summary: "create an empty file", minArgs: 1, maxArgs: 1, perm: perm.Create, run: cmdTouch},
		"mkdir":  {usage: "mkdir <name>", summary: "create directory", minArgs: 1, maxArgs: 1, perm: perm.Create, run: cmdMkdir},
		"rm":     {usage: "rm <name>", summary: "delete a file or directory tree", minArgs: 1, maxArgs: 1, perm: perm.Delete, run: cmdRemove},
		"copy":   {usage: "copy <src> <dstDir>", summary: "copy a file or directory into dstDir", minArgs: 2, maxArgs: 2, perm: perm.Create, run: cmdCopy},
		"cat":    {usage: "cat <name>", summary: "print a file", minArgs: 1, maxArgs: 1, perm: perm.ReadContent, run: cmdCat},
		"sum":    {usage: "sum <name>", summary: "print the BLAKE2b-256 checksum of a file", minArgs: 1, maxArgs: 1, perm: perm.ReadContent, run: cmdSum},
		"nick":   {usage: "nick <name>", summary: "change nickname", minArgs: 1, maxArgs: 1, run: cmdNick},
		"exit":   {usage: "exit", summary: "close the connection", run: cmdExit},
	}
}

// execute parses one line and runs it on behalf of c.  Every outcome is
// contained here; nothing a client sends can stop the loop.
func (s *Server) execute(c *Conn, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	verb, args := fields[0], fields[1:]
	log := s.logger.With("conn", c.ID.String(), "verb", verb)

	cmd, ok := commands[verb]
	if !ok {
		log.Debug("ignoring unknown command", "line", line)
		s.metrics.CommandRejected()
		return
	}
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		log.Warn("wrong argument count", "args", len(args))
		s.metrics.CommandRejected()
		s.replyError(c, &errors.UsageError{Usage: cmd.usage})
		return
	}
	if !s.perms.Has(cmd.perm) {
		log.Warn("permission denied", "needs", cmd.perm)
		s.metrics.CommandRejected()
		s.replyError(c, errors.Command(verb, "", errors.ErrPermission))
		return
	}

	out, err := cmd.run(s, c, args)
	s.metrics.CommandHandled()
	if err != nil {
		log.Verbose("command failed", "cwd", c.cwd, "err", err)
		s.replyError(c, err)
	}
	if out != "" {
		s.router.Send(c.addr, out)
	}
}

func (s *Server) replyError(c *Conn, err error) {
	s.router.Send(c.addr, "error: "+err.Error()+"\n")
}

// ── handlers ─────────────────────────────────────────────────────────

func cmdHelp(_ *Server, _ *Conn, _ []string) (string, error) {
	var b strings.Builder
	for _, v := range verbs {
		cmd := commands[v]
		fmt.Fprintf(&b, "\t%-22s %s\n", cmd.usage, cmd.summary)
	}
	return b.String(), nil
}

func cmdList(s *Server, c *Conn, _ []string) (string, error) {
	names, err := s.fs.List(c.cwd)
	if err != nil {
		return "", errors.Command("ls", "", err)
	}
	return strings.Join(names, " ") + "\n", nil
}

// cmdChangeDir does not check that the target exists; the next command
// that touches the filesystem reports it.
func cmdChangeDir(_ *Server, c *Conn, args []string) (string, error) {
	next, err := navigator.Change(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("cd", args[0], err)
	}
	c.cwd = next
	return "", nil
}

func cmdTouch(s *Server, c *Conn, args []string) (string, error) {
	p, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("touch", args[0], err)
	}
	created, err := s.fs.CreateFile(p)
	if err != nil {
		return "", errors.Command("touch", args[0], err)
	}
	if created {
		s.logger.Verbose("file created", "conn", c.ID.String(), "path", p)
	}
	return "", nil
}

func cmdMkdir(s *Server, c *Conn, args []string) (string, error) {
	p, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("mkdir", args[0], err)
	}
	if err := s.fs.CreateDir(p); err != nil {
		return "", errors.Command("mkdir", args[0], err)
	}
	s.logger.Verbose("directory created", "conn", c.ID.String(), "path", p)
	return "", nil
}

func cmdRemove(s *Server, c *Conn, args []string) (string, error) {
	p, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("rm", args[0], err)
	}
	if err := s.fs.DeleteRecursive(p); err != nil {
		return "", errors.Command("rm", args[0], err)
	}
	if navigator.Contains(p, c.cwd) {
		c.cwd = navigator.Parent(p)
	}
	return "", nil
}

// cmdCopy copies cwd/src to dstDir/base(src).  dstDir resolves like a cd
// target.
func cmdCopy(s *Server, c *Conn, args []string) (string, error) {
	src, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("copy", args[0], err)
	}
	if src == navigator.Root {
		return "", errors.Command("copy", args[0], errors.ErrInvalidPath)
	}
	dir, err := navigator.Change(c.cwd, args[1])
	if err != nil {
		return "", errors.Command("copy", args[1], err)
	}
	dst := path.Join(dir, navigator.Base(src))
	copied, err := s.fs.Copy(src, dst)
	if err != nil {
		arg := args[0]
		if errors.IsNotFound(err) {
			arg = args[1]
		}
		return "", errors.Command("copy", arg, err)
	}
	if copied {
		s.logger.Verbose("copied", "conn", c.ID.String(), "src", src, "dst", dst)
	}
	return "", nil
}

func cmdCat(s *Server, c *Conn, args []string) (string, error) {
	p, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("cat", args[0], err)
	}
	lines, err := s.fs.ReadLines(p)
	if err != nil {
		return "", errors.Command("cat", args[0], err)
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func cmdSum(s *Server, c *Conn, args []string) (string, error) {
	p, err := navigator.Resolve(c.cwd, args[0])
	if err != nil {
		return "", errors.Command("sum", args[0], err)
	}
	data, err := s.fs.ReadFile(p)
	if err != nil {
		return "", errors.Command("sum", args[0], err)
	}
	return fmt.Sprintf("%x  %s\n", blake2b.Sum256(data), args[0]), nil
}

func cmdNick(s *Server, c *Conn, args []string) (string, error) {
	s.logger.Verbose("nickname changed", "conn", c.ID.String(), "from", c.nick, "to", args[0])
	c.nick = args[0]
	return "", nil
}

func cmdExit(s *Server, c *Conn, _ []string) (string, error) {
	c.closing = true
	return "", nil
}

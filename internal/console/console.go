// Package console implements the operator interrupt-triggered command line,
// grounded on original_source/almmmost/almmmost_cmdline.c's
// alm_cmd_sigint and spec.md §6.5.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/vax11/almmmost/internal/dispatcher"
	"github.com/vax11/almmmost/internal/fileengine"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/special"
)

// Console owns the operator command loop. It reads one line at a time from
// in whenever a SIGINT arrives, matching the original's one-shot signal
// handler (every ^C prints a fresh prompt and blocks for exactly one
// command).
type Console struct {
	Disp    *dispatcher.Disp
	Engine  *fileengine.Engine
	Out     io.Writer
	in      *bufio.Reader
	saveOS  func(osnum int, path string) error
	quit    chan struct{}
}

// New constructs a console reading commands from os.Stdin and writing
// prompts/diagnostics to os.Stdout.
func New(disp *dispatcher.Disp, engine *fileengine.Engine, saveOS func(int, string) error) *Console {
	return &Console{
		Disp:   disp,
		Engine: engine,
		Out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
		saveOS: saveOS,
		quit:   make(chan struct{}),
	}
}

// Quit is closed when the "exit"/"quit" command is issued.
func (c *Console) Quit() <-chan struct{} { return c.quit }

// Run installs a SIGINT handler and blocks, reading and executing one
// command per interrupt, until the console's Quit channel fires. Call in
// its own goroutine.
func (c *Console) Run() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	for {
		select {
		case <-sig:
			c.prompt()
		case <-c.quit:
			signal.Stop(sig)
			return
		}
	}
}

func (c *Console) prompt() {
	fmt.Fprint(c.Out, "\nAlmmmost> ")
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.Out, "Empty command, returning.")
		return
	}
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		fmt.Fprintln(c.Out, "Empty command, returning.")
		return
	}
	c.dispatch(cmd)
}

func (c *Console) dispatch(cmd string) {
	lower := strings.ToLower(cmd)
	switch {
	case lower == "abort":
		c.Disp.Abort()

	case lower == "locate":
		c.Disp.Locate()

	case strings.HasPrefix(lower, "reopen "):
		c.cmdReopen(strings.TrimSpace(cmd[len("reopen "):]))

	case strings.HasPrefix(lower, "filein "):
		c.cmdFileIn(strings.TrimSpace(cmd[len("filein "):]))

	case strings.HasPrefix(lower, "fileout "):
		c.cmdFileOut(strings.TrimSpace(cmd[len("fileout "):]))

	case strings.HasPrefix(lower, "closeport "):
		c.cmdClosePort(strings.TrimSpace(cmd[len("closeport "):]))

	case lower == "printfil":
		c.cmdPrintFil()

	case lower == "printspe":
		fmt.Fprintln(c.Out, "printspe: special-file registry has no enumerable listing; see config for registered names.")

	case lower == "printdpb":
		c.cmdPrintDPB()

	case lower == "printhpb":
		fmt.Fprintln(c.Out, "printhpb: OS-image header info unavailable (boot/OS-load stream out of scope).")

	case strings.HasPrefix(lower, "saveos "):
		c.cmdSaveOS(strings.TrimSpace(cmd[len("saveos "):]))

	case lower == "sync":
		if err := c.Engine.Sync(); err != nil {
			fmt.Fprintf(c.Out, "sync error: %v\n", err)
		}

	case lower == "exit" || lower == "quit":
		_ = c.Engine.Sync()
		close(c.quit)

	default:
		fmt.Fprintf(c.Out, "Unknown command: %q\n", cmd)
	}
}

// cmdReopen implements "reopen <letter>[:<slot>] <path>".
func (c *Console) cmdReopen(rest string) {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 {
		fmt.Fprintln(c.Out, "usage: reopen <letter>[:<slot>] <path>")
		return
	}
	selector, path := fields[0], strings.TrimSpace(fields[1])

	letter := selector
	slot := 0
	if idx := strings.IndexByte(selector, ':'); idx >= 0 {
		letter = selector[:idx]
		s, err := strconv.Atoi(selector[idx+1:])
		if err != nil {
			fmt.Fprintln(c.Out, "bad slot number")
			return
		}
		slot = s
	}
	if len(letter) != 1 {
		fmt.Fprintln(c.Out, "bad disk letter")
		return
	}
	disk := int(letter[0]&0xDF) - 'A'
	if disk < 0 || disk >= len(c.Engine.Disks) || c.Engine.Disks[disk] == nil {
		fmt.Fprintf(c.Out, "disk out of range: %c\n", letter[0])
		return
	}
	ro := false
	if strings.HasPrefix(strings.ToUpper(path), "RO:") {
		ro = true
		path = path[3:]
	}
	d := c.Engine.Disks[disk]
	if err := imagestore.Reopen(d, slot, path, ro, func() { c.Engine.ClosePort(-1) }); err != nil {
		fmt.Fprintf(c.Out, "Error re-opening file %q: %v\n", path, err)
	}
}

func (c *Console) cmdFileIn(path string) {
	c.Engine.Special.Register(special.Canonicalize([8]byte{'F', 'I', 'L', 'E', 'I', 'N', ' ', ' '}, [3]byte{'S', 'Y', 'S'}), special.NewFileInTrap(path))
}

func (c *Console) cmdFileOut(path string) {
	c.Engine.Special.Register(special.Canonicalize([8]byte{'F', 'I', 'L', 'E', 'O', 'U', 'T', ' '}, [3]byte{'S', 'Y', 'S'}), special.NewFileOutTrap(path))
}

func (c *Console) cmdClosePort(arg string) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 0 || port >= len(c.Engine.Ports) {
		fmt.Fprintln(c.Out, "Port number out of range.")
		return
	}
	c.Engine.ClosePort(port)
}

func (c *Console) cmdPrintFil() {
	for h, e := range c.Engine.OFT.All() {
		fmt.Fprintf(c.Out, "handle %d: port %d disk %d user %d name %s\n", h, e.Port, e.Disk, e.User, filename(e.Name, e.Ext))
	}
}

func (c *Console) cmdPrintDPB() {
	for i, d := range c.Engine.Disks {
		if d == nil {
			continue
		}
		fmt.Fprintf(c.Out, "disk %d: kind=%s spt=%d bsf=%d exm=%d dbm=%d dbl=%d res=%d\n",
			i, d.Params.Kind, d.Params.SPT, d.Params.BSF, d.Params.EXM, d.Params.DBM, d.Params.DBL, d.Params.RES)
	}
}

func (c *Console) cmdSaveOS(rest string) {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) != 2 || c.saveOS == nil {
		fmt.Fprintln(c.Out, "usage: saveos <n> <path> (unavailable: boot/OS-load stream out of scope)")
		return
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		fmt.Fprintln(c.Out, "Error getting OS number")
		return
	}
	if err := c.saveOS(n, strings.TrimSpace(fields[1])); err != nil {
		fmt.Fprintf(c.Out, "saveos error: %v\n", err)
	}
}

func filename(name [8]byte, ext [3]byte) string {
	var b strings.Builder
	for _, c := range name {
		if c == ' ' {
			break
		}
		b.WriteByte(c & 0x7F)
	}
	b.WriteByte('.')
	for _, c := range ext {
		if c == ' ' {
			break
		}
		b.WriteByte(c & 0x7F)
	}
	return b.String()
}

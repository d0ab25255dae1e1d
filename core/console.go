package core

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/encodeous/dvr/state"
)

// Console reads control commands line by line and writes their responses
type Console struct {
	*state.State
	In  io.Reader
	Out io.Writer
	wg  sync.WaitGroup
}

func (c *Console) Init(s *state.State) error {
	s.Log.Debug("init console")
	c.State = s
	if c.In == nil {
		c.In = os.Stdin
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

func (c *Console) readLoop() {
	defer c.wg.Done()
	sc := bufio.NewScanner(c.In)
	for sc.Scan() {
		line := sc.Text()
		c.Dispatch(func(s *state.State) error {
			_, err := io.WriteString(c.Out, RunCommand(s, line))
			return err
		})
		if c.Context.Err() != nil {
			return
		}
	}
	if err := sc.Err(); err != nil && c.Context.Err() == nil {
		c.Log.Warn("stopped reading commands", "error", err)
		return
	}
	c.Log.Debug("command input closed")
}

func (c *Console) Cleanup(s *state.State) error {
	// stdin cannot be interrupted, its reader exits with the process
	if closer, ok := c.In.(io.Closer); ok && c.In != os.Stdin {
		err := closer.Close()
		c.wg.Wait()
		return err
	}
	return nil
}

package console

import (
	"bufio"
	"context"
	"fmt"
)

// runLines is the plain mode used when the console is not a terminal.
// A line typed while a question is pending answers it.
func (c *Console) runLines(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read console: %w", err)
			}
			c.logger.Debug("console input closed")
			return nil
		case line := <-lines:
			if c.answer(line) {
				continue
			}
			if err := c.Handle(line); err != nil {
				c.Print("[ERROR] " + err.Error())
			}
		}
	}
}

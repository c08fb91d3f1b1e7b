// Command freestyle-console is an interactive REPL for sending arbitrary
// text-channel commands to a connected FreeStyle meter and inspecting the
// replies, useful for exploring an unfamiliar device's command grammar.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/barnettlynn/freestyle-hid/internal/config"
	"github.com/barnettlynn/freestyle-hid/pkg/freestyle"
)

const configFileName = "config.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	textTypeOut := flag.Int("text-type-out", 0x60, "outbound text-channel message type")
	textTypeIn := flag.Int("text-type-in", 0x60, "inbound text-channel message type")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	configPath, err := defaultConfigPath()
	if err != nil {
		log.Fatalf("resolve config path failed: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	device, err := freestyle.OpenDevice(cfg.Device.Path, cfg.Device.ProductID)
	if err != nil {
		log.Fatalf("open device failed: %v", err)
	}

	session := freestyle.NewSession(device, cfg.Device.ProductID, byte(*textTypeOut), byte(*textTypeIn), cfg.Device.Encoding)
	defer session.Close()

	if err := session.Connect(); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	fmt.Println("Connected. Ctrl-C to quit.")

	for {
		choice := selectMenu("Action:", []string{"Send text command", "Query multirecord", "Quit"})
		switch choice {
		case 0:
			cmd := readLine("Command: ")
			reply, err := session.SendTextCommand([]byte(cmd))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Reply: %q\n", reply)
		case 1:
			cmd := readLine("Command: ")
			records, err := session.QueryMultirecord([]byte(cmd))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for {
				row, ok, err := records.Next()
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					break
				}
				if !ok {
					break
				}
				fmt.Println(row)
			}
		default:
			return
		}
	}
}

func readLine(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// selectMenu renders a raw-mode, arrow-key-navigable menu and returns the
// selected index, or -1 on failure.
func selectMenu(prompt string, items []string) int {
	if len(items) == 0 {
		return -1
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	selected := 0

	fmt.Printf("%s\r\n", prompt)
	for i, item := range items {
		if i == selected {
			fmt.Printf("> %s\r\n", item)
		} else {
			fmt.Printf("  %s\r\n", item)
		}
	}

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			break
		}

		if n == 1 {
			switch buf[0] {
			case 0x0D, 0x0A:
				fmt.Printf("\r\n")
				return selected
			case 0x03:
				term.Restore(int(os.Stdin.Fd()), oldState)
				fmt.Printf("\r\n")
				os.Exit(0)
			}
		} else if n == 3 && buf[0] == 0x1B && buf[1] == '[' {
			needRedraw := false
			switch buf[2] {
			case 'A':
				if selected > 0 {
					selected--
					needRedraw = true
				}
			case 'B':
				if selected < len(items)-1 {
					selected++
					needRedraw = true
				}
			}
			if needRedraw {
				fmt.Printf("\033[%dA", len(items))
				for i, item := range items {
					fmt.Print("\033[2K\r")
					if i == selected {
						fmt.Printf("> %s\r\n", item)
					} else {
						fmt.Printf("  %s\r\n", item)
					}
				}
			}
		}
	}

	return selected
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

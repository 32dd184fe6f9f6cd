// Command client is a line-oriented console client for the chat relay.
//
// Commands:
//
//	/create <user> <pass>   register an account
//	/login <user> <pass>    authenticate
//	/quit                   disconnect
//
// Any other input line is sent as a chat message.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chatrelay/chatrelay/pkg/client"
	"github.com/chatrelay/chatrelay/pkg/logging"
	"github.com/chatrelay/chatrelay/pkg/version"
)

func main() {
	addr := flag.String("addr", "localhost:9500", "Server address")
	logLevel := flag.String("log-level", "warn", "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	c.OnChat = func(sender, body string) {
		fmt.Printf("<%s> %s\n", sender, body)
	}
	c.OnLoginResult = func(ok bool) {
		if ok {
			fmt.Println("logged in")
		} else {
			fmt.Println("login failed")
		}
	}
	c.OnAccountResult = func(created bool) {
		if created {
			fmt.Println("account created")
		} else {
			fmt.Println("account already exists")
		}
	}
	c.OnDisconnect = func(err error) {
		if err != nil {
			fmt.Printf("connection error: %v\n", err)
		} else {
			fmt.Println("server closed the connection")
		}
		os.Exit(0)
	}
	c.Start()

	fmt.Printf("connected to %s\n", *addr)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if quit := handleInput(c, scanner.Text()); quit {
			return
		}
	}
}

// handleInput turns one console line into a request. Returns true when the
// user asked to quit.
func handleInput(c *client.Client, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch {
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/create "):
		user, pass, ok := splitCredentials(line)
		if !ok {
			fmt.Println("usage: /create <user> <pass>")
			return false
		}
		err = c.CreateAccount(user, pass)
	case strings.HasPrefix(line, "/login "):
		user, pass, ok := splitCredentials(line)
		if !ok {
			fmt.Println("usage: /login <user> <pass>")
			return false
		}
		err = c.Login(user, pass)
	case strings.HasPrefix(line, "/"):
		fmt.Printf("unknown command %q\n", strings.Fields(line)[0])
		return false
	default:
		err = c.SendChat(line)
	}

	if err != nil {
		fmt.Printf("send failed: %v\n", err)
		return true
	}
	return false
}

// splitCredentials parses "/cmd user pass".
func splitCredentials(line string) (user, pass string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", false
	}
	return fields[1], fields[2], true
}

package protocol

import (
	"strconv"
	"strings"
)

// Parse turns one protocol line into a Command. It never fails: anything
// it does not understand comes back as Malformed. The keyword match is
// case-sensitive; tokens are separated by a single ASCII space, so runs of
// spaces yield empty tokens.
func Parse(line string) Command {
	line = strings.TrimRight(line, "\r\n")

	head, body, _ := strings.Cut(line, " ")
	switch head {
	case "NICK":
		return parseNick(split(body), line)
	case "USER":
		return parseUser(body, line)
	case "PASS":
		password := strings.TrimSpace(first(split(body)))
		if password == "" {
			return Malformed{Line: line}
		}
		return Password{Password: password}
	case "PRIVMSG":
		return parsePrivMsg(body, line)
	case "QUIT":
		msg := strings.TrimPrefix(strings.TrimSpace(body), ":")
		return Quit{Message: msg, HasMessage: msg != ""}
	case "JOIN":
		return parseJoin(split(body), line)
	case "PING":
		server := strings.TrimPrefix(strings.TrimSpace(first(split(body))), ":")
		if server == "" {
			return Malformed{Line: line}
		}
		return Ping{Server: server}
	case "MODE":
		return parseMode(split(body), line)
	default:
		return Malformed{Line: line}
	}
}

func split(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, " ")
}

func first(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func parseNick(parts []string, line string) Command {
	switch len(parts) {
	case 0:
		return Malformed{Line: line}
	case 1:
		return Nick{Nickname: strings.TrimSpace(parts[0])}
	default:
		hops, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || hops < 0 {
			return Malformed{Line: line}
		}
		return Nick{Nickname: strings.TrimSpace(parts[0]), HopCount: hops}
	}
}

// parseUser keeps everything after the third parameter as the real name,
// so "USER bob host srv :Bob Smith" yields "Bob Smith".
func parseUser(body, line string) Command {
	parts := strings.SplitN(body, " ", 4)
	if len(parts) < 4 {
		return Malformed{Line: line}
	}
	username := strings.TrimSpace(parts[0])
	if username == "" {
		return Malformed{Line: line}
	}
	return User{
		Username:   username,
		Hostname:   strings.TrimSpace(parts[1]),
		Servername: strings.TrimSpace(parts[2]),
		Realname:   strings.TrimPrefix(strings.TrimSpace(parts[3]), ":"),
	}
}

func parsePrivMsg(body, line string) Command {
	target, message, ok := strings.Cut(body, " ")
	if !ok || target == "" {
		return Malformed{Line: line}
	}

	if strings.HasPrefix(target, "#") {
		return ChannelMessage{Channel: target, Message: message}
	}
	return PrivateMessage{
		Receivers: strings.Split(target, ","),
		Message:   message,
	}
}

func parseJoin(parts []string, line string) Command {
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Malformed{Line: line}
	}

	join := Join{
		Channels: strings.Split(strings.TrimSpace(parts[0]), ","),
		Keys:     []string{},
	}
	if len(parts) > 1 {
		if keys := strings.TrimSpace(parts[1]); keys != "" {
			join.Keys = strings.Split(keys, ",")
		}
	}
	return join
}

func parseMode(parts []string, line string) Command {
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Malformed{Line: line}
	}

	mode := Mode{Channel: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		mode.Mode = strings.TrimSpace(parts[1])
		mode.HasMode = true
	}
	return mode
}

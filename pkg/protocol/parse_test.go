package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func checkParse(t *testing.T, tests map[string]struct {
	line string
	want Command
}) {
	t.Helper()
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := Parse(tt.line)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseNick(t *testing.T) {
	checkParse(t, map[string]struct {
		line string
		want Command
	}{
		"plain":             {"NICK rona", Nick{Nickname: "rona"}},
		"brackets":          {"NICK <>", Nick{Nickname: "<>"}},
		"symbols":           {"NICK 12345aeiou__#$", Nick{Nickname: "12345aeiou__#$"}},
		"hop count":         {"NICK 12345aeiou__#$ 10", Nick{Nickname: "12345aeiou__#$", HopCount: 10}},
		"crlf":              {"NICK bob\r\n", Nick{Nickname: "bob"}},
		"non numeric hops":  {"NICK bob many", Malformed{Line: "NICK bob many"}},
		"negative hops":     {"NICK bob -1", Malformed{Line: "NICK bob -1"}},
		"missing nickname":  {"NICK", Malformed{Line: "NICK"}},
		"double space hops": {"NICK  bob", Malformed{Line: "NICK  bob"}},
	})
}

func TestParseUser(t *testing.T) {
	checkParse(t, map[string]struct {
		line string
		want Command
	}{
		"four tokens": {"USER bob bob bob bob", User{Username: "bob", Hostname: "bob", Servername: "bob", Realname: "bob"}},
		"distinct": {"USER guest tolmoon tolsun :Ronnie Reagan", User{
			Username:   "guest",
			Hostname:   "tolmoon",
			Servername: "tolsun",
			Realname:   "Ronnie Reagan",
		}},
		"too few":        {"USER bob bob bob", Malformed{Line: "USER bob bob bob"}},
		"empty username": {"USER  a b c", Malformed{Line: "USER  a b c"}},
	})
}

func TestParsePrivMsg(t *testing.T) {
	const text = "Um dois três de oliveira quatro. !!!123 4%"
	checkParse(t, map[string]struct {
		line string
		want Command
	}{
		"channel":  {"PRIVMSG #rona " + text, ChannelMessage{Channel: "#rona", Message: text}},
		"one nick": {"PRIVMSG rona " + text, PrivateMessage{Receivers: []string{"rona"}, Message: text}},
		"many nicks": {"PRIVMSG pata,peta,pita,pota " + text, PrivateMessage{
			Receivers: []string{"pata", "peta", "pita", "pota"},
			Message:   text,
		}},
		"trailing colon kept": {"PRIVMSG bob :hello there", PrivateMessage{Receivers: []string{"bob"}, Message: ":hello there"}},
		"empty target":        {"PRIVMSG  hello", Malformed{Line: "PRIVMSG  hello"}},
		"no message":          {"PRIVMSG bob", Malformed{Line: "PRIVMSG bob"}},
	})
}

func TestParseJoin(t *testing.T) {
	checkParse(t, map[string]struct {
		line string
		want Command
	}{
		"one channel":   {"JOIN #aaa", Join{Channels: []string{"#aaa"}}},
		"no hash":       {"JOIN aaa", Join{Channels: []string{"aaa"}}},
		"with key":      {"JOIN #aaa key1", Join{Channels: []string{"#aaa"}, Keys: []string{"key1"}}},
		"paired":        {"JOIN #aaa,#bbb key1,key2", Join{Channels: []string{"#aaa", "#bbb"}, Keys: []string{"key1", "key2"}}},
		"missing chans": {"JOIN", Malformed{Line: "JOIN"}},
	})
}

func TestJoinKeyPairing(t *testing.T) {
	join := Parse("JOIN #a,#b,#c k1,k2").(Join)

	want := []string{"k1", "k2", ""}
	for i := range join.Channels {
		if got := join.Key(i); got != want[i] {
			t.Errorf("Key(%d) = %q, want %q", i, got, want[i])
		}
	}
}

func TestParseOthers(t *testing.T) {
	checkParse(t, map[string]struct {
		line string
		want Command
	}{
		"pass":          {"PASS secret", Password{Password: "secret"}},
		"pass missing":  {"PASS", Malformed{Line: "PASS"}},
		"quit":          {"QUIT", Quit{}},
		"quit message":  {"QUIT :gone fishing", Quit{Message: "gone fishing", HasMessage: true}},
		"ping":          {"PING irc.example.org", Ping{Server: "irc.example.org"}},
		"ping colon":    {"PING :token", Ping{Server: "token"}},
		"ping missing":  {"PING", Malformed{Line: "PING"}},
		"mode query":    {"MODE #room", Mode{Channel: "#room"}},
		"mode set":      {"MODE #room +i", Mode{Channel: "#room", Mode: "+i", HasMode: true}},
		"mode missing":  {"MODE", Malformed{Line: "MODE"}},
		"lowercase":     {"nick bob", Malformed{Line: "nick bob"}},
		"unknown":       {"WHOIS bob", Malformed{Line: "WHOIS bob"}},
		"empty":         {"", Malformed{}},
		"leading space": {" NICK bob", Malformed{Line: " NICK bob"}},
	})
}

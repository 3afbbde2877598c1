package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"visgw/internal/constants"
	"visgw/internal/protocol"
	"visgw/internal/utils"
)

const (
	colorReset  = constants.ColorReset
	colorBold   = constants.ColorBold
	colorDim    = constants.ColorDim
	colorCyan   = constants.ColorCyan
	colorGreen  = constants.ColorGreen
	colorYellow = constants.ColorYellow
	colorRed    = constants.ColorRed
)

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s%svisgw%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
	fmt.Printf("  %sVehicle Signal Gateway Client%s\n", colorDim, colorReset)
	fmt.Println()
}

func printField(label, value, valueColor string) {
	fmt.Printf("  %s%-12s%s %s%s%s\n", colorDim, label, colorReset, valueColor, value, colorReset)
}

func printSep() {
	fmt.Printf("  %s%s%s\n", colorDim, strings.Repeat("─", 50), colorReset)
}

func printMessage(data []byte) {
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		fmt.Printf("  %s<- %s%s\n", colorDim, string(data), colorReset)
		return
	}

	color := colorGreen
	if resp.Error != "" {
		color = colorRed
	}
	fmt.Printf("  %s<-%s %s%s%s\n", colorDim, colorReset, color, string(data), colorReset)
}

func main() {
	flag.Usage = func() {
		fmt.Println()
		fmt.Printf("  %s%svisgw-client%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
		fmt.Println()
		fmt.Printf("  %sUsage:%s\n", colorBold, colorReset)
		fmt.Printf("    visgw-client -action %sget%s -path Signal.Drivetrain.Speed\n", colorCyan, colorReset)
		fmt.Printf("    visgw-client -action %ssubscribe%s -path Signal.Drivetrain.Speed -listen 10s\n", colorCyan, colorReset)
		fmt.Printf("    visgw-client -action %sset%s -path Signal.Cabin.HVAC.Row1.RightTemperature -value 22\n", colorCyan, colorReset)
		fmt.Println()
		fmt.Printf("  %sFlags:%s\n", colorBold, colorReset)
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Printf("    -%-10s %s\n", f.Name, f.Usage)
		})
		fmt.Println()
	}

	serverURL := flag.String("server", utils.GetEnv("VISGW_SERVER", "ws://localhost:8088/"), "gateway WebSocket URL")
	action := flag.String("action", "get", "get, set, subscribe, unsubscribe, unsubscribeAll, getVSS or authorize")
	path := flag.String("path", "", "signal path, e.g. Signal.Drivetrain.Speed")
	value := flag.String("value", "", "value for set (raw JSON)")
	tokenVal := flag.String("token", "", "token for authorize")
	subID := flag.String("sub", "", "subscriptionId for unsubscribe")
	listen := flag.Duration("listen", 0, "keep listening for notifications (0 = one response)")
	versionFlag := flag.Bool("version", false, "show version")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("  %s%svisgw-client%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
		os.Exit(0)
	}

	act, ok := protocol.ParseAction(*action)
	if !ok {
		fmt.Printf("  %sUnknown action: %s%s\n", colorRed, *action, colorReset)
		os.Exit(1)
	}

	printBanner()
	printField("Server", *serverURL, colorCyan)
	printField("Action", act.String(), colorGreen)
	if *path != "" {
		printField("Path", *path, colorReset)
	}
	printSep()

	dialer := websocket.Dialer{
		Subprotocols:     []string{constants.SubProtocol},
		HandshakeTimeout: constants.WSHandshakeTimeout,
	}
	conn, _, err := dialer.Dial(*serverURL, nil)
	if err != nil {
		fmt.Printf("  %sConnection failed: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	defer conn.Close()

	msg := protocol.Message{
		Action:    act.String(),
		RequestID: uuid.New().String(),
		Path:      *path,
	}
	if *value != "" {
		msg.Value = json.RawMessage(*value)
	}
	if *subID != "" {
		msg.SubscriptionID = *subID
	}
	if act == protocol.ActionAuthorize {
		msg.Tokens = map[string]string{"authorization": *tokenVal}
	}

	if err := conn.WriteJSON(msg); err != nil {
		fmt.Printf("  %sSend failed: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}

	out, _ := json.Marshal(msg)
	fmt.Printf("  %s->%s %s\n", colorDim, colorReset, string(out))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	deadline := time.Time{}
	if *listen > 0 {
		deadline = time.Now().Add(*listen)
	}

	received := make(chan []byte)
	go func() {
		defer close(received)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}()

	keepListening := act == protocol.ActionSubscribe || *listen > 0
	for {
		var timeout <-chan time.Time
		if !deadline.IsZero() {
			timeout = time.After(time.Until(deadline))
		}

		select {
		case data, ok := <-received:
			if !ok {
				fmt.Printf("  %sConnection closed%s\n", colorYellow, colorReset)
				return
			}
			printMessage(data)
			if !keepListening {
				return
			}
		case <-timeout:
			printSep()
			fmt.Printf("  %sDone listening%s\n", colorDim, colorReset)
			return
		case <-sigChan:
			fmt.Println()
			return
		}
	}
}

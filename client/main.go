package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zl21st/udpstun/stun"
)

func main() {
	cln := stun.Client{}
	flag.StringVar(&cln.ServerHost, "H", "", "server host")
	flag.IntVar(&cln.ServerPort, "P", 3478, "server port")
	timeout := flag.Int("O", 3, "per-probe timeout, in seconds")
	flag.IntVar(&cln.Retries, "R", 0, "extra attempts per probe after a timeout")
	flag.StringVar(&cln.LocalAddr, "i", "", "local address, ip or ip:port")
	flag.BoolVar(&cln.Debug, "D", false, "enable debug mode")
	version := flag.Bool("version", false, "show version")
	flag.Parse()

	if *version {
		fmt.Println(stun.Version)
		return
	}

	cln.Timeout = time.Duration(*timeout) * time.Second
	if err := cln.Init(); err != nil {
		log.Fatal(err)
	}

	res, err := cln.Discover()
	if err != nil {
		log.Fatal(err)
	}
	res.Print()
}

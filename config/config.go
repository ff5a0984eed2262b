package config

import (
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DBUrl       string
	MaxPageSize int
	Debug       bool
}

// ParseFlags reads configuration from CLI flags, falling back to
// environment variables (optionally loaded from a .env file).
// Flags win over environment values.
func ParseFlags() (Config, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (cfg Config, err error) {
	godotenv.Load() // missing .env file is fine

	flags := flag.NewFlagSet("quick-forms", flag.ContinueOnError)
	var host string
	flags.StringVar(&host, "host", envString("QF_HOST", "0.0.0.0"), "listen host name")
	var port uint
	flags.UintVar(&port, "port", envUint("QF_PORT", 8080), "listen port number")
	flags.StringVar(&cfg.DBUrl, "db-url", envString("QF_DB_URL", "qforms.sqlite"), "path to SQLite3 DB file")
	flags.IntVar(&cfg.MaxPageSize, "max-page-size", int(envUint("QF_MAX_PAGE_SIZE", 100)), "maximum page size for list endpoints")
	flags.BoolVar(&cfg.Debug, "debug", envString("QF_DEBUG", "") != "", "log at DEBUG level")
	if err = flags.Parse(args); err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envString(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func envUint(name string, fallback uint) uint {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}

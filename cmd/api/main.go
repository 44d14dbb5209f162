package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/molpadia/molpareplay/internal/app"
	"github.com/molpadia/molpareplay/internal/infrastructure/persistence"
)

var (
	addr     = flag.String("addr", env("ADDR", ":4443"), "web server address")
	cert     = flag.String("cert", env("CERT_FILE", ""), "path of TLS certificate file")
	key      = flag.String("key", env("CERT_KEY", ""), "path of TLS private key file")
	bucket   = flag.String("bucket", env("AWS_S3_VOD_BUCKET", ""), "bucket the videos are uploaded to")
	table    = flag.String("table", env("AWS_DB_VOD_NAME", ""), "DynamoDB table of video records")
	region   = flag.String("region", env("AWS_REGION", ""), "storage region")
	endpoint = flag.String("endpoint", env("S3_ENDPOINT", ""), "endpoint of an S3-compatible storage provider")
	token    = flag.String("token", env("API_TOKEN", ""), "bearer token required on every request")
	maxSize  = flag.String("max-size", env("MAX_FILE_SIZE", "500MiB"), "largest accepted video")
	urlTTL   = flag.String("url-ttl", env("PART_URL_TTL", "1h"), "lifetime of pre-signed part URLs")
	proxyURL = flag.String("proxy-url", env("PROXY_BASE_URL", ""), "public base URL of this server, set to upload parts through it instead of pre-signed URLs")
)

func main() {
	flag.Parse()

	if *bucket == "" || *table == "" {
		log.Fatal("bucket and table must be configured")
	}

	sess, err := persistence.NewSession(*region, *endpoint)
	if err != nil {
		log.Fatalf("failed to create AWS session: %v", err)
	}

	maxFileSize, err := byteSize(*maxSize)
	if err != nil {
		log.Fatalf("invalid max-size: %v", err)
	}

	r := mux.NewRouter()
	app.SetupRoutes(r,
		persistence.NewVideoRepository(sess, *table),
		persistence.NewUploader(sess, *bucket),
		app.Config{
			MaxFileSize:  maxFileSize,
			PartURLTTL:   duration(*urlTTL, app.DefaultPartURLTTL),
			ProxyBaseURL: *proxyURL,
			Token:        *token,
		},
	)

	srv := &http.Server{
		Handler: r,
		Addr:    *addr,
		// Proxied parts can be up to 64MiB.
		WriteTimeout: 2 * time.Minute,
		ReadTimeout:  2 * time.Minute,
	}
	defer srv.Close()

	log.Printf("the server started on port: %s\n", *addr)

	if *cert != "" && *key != "" {
		log.Fatal(srv.ListenAndServeTLS(*cert, *key))
	} else {
		log.Fatal(srv.ListenAndServe())
	}
}

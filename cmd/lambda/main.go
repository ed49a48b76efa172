// adtech-chat - AWS Lambda function URL handler for the chat proxy.
//
// The function must use the RESPONSE_STREAM invoke mode so replies reach the
// browser as they arrive. Configuration comes from the environment only:
//
//	ADTECH_MODEL, ADTECH_UPSTREAM_URL, ADTECH_MAX_BODY_BYTES,
//	ADTECH_SYSTEM_PROMPT_FILE, and the credential named by
//	ADTECH_CREDENTIAL_ENV (LOVABLE_API_KEY by default).
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdaurl"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/server"
)

// newHandler builds the function handler from the environment.
func newHandler(logger *log.Logger) (http.Handler, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	chat, _, err := server.NewChatHandlerFromConfig(cfg.Proxy, logger)
	if err != nil {
		return nil, err
	}
	cors := server.NewCORSConfig(cfg.Proxy.Origins())
	return server.NewFunctionHandler(chat, cors, logger), nil
}

var (
	handler  http.Handler
	initOnce sync.Once
	initErr  error
)

// serveHTTP builds the handler on the first invocation and reuses it while
// the execution environment stays warm.
func serveHTTP(logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initOnce.Do(func() {
			handler, initErr = newHandler(logger)
		})
		if initErr != nil {
			logger.Printf("LAMBDA_INIT_FAILED | error=%v", initErr)
			initFailed.ServeHTTP(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	}
}

// initFailed answers every request when the handler could not be built. The
// configured origins are unknown at that point, so any origin may read the
// error.
var initFailed = server.CORSMiddleware(server.DefaultCORSConfig())(
	http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, http.StatusInternalServerError, server.MsgNotConfigured)
	}),
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	lambda.Start(lambdaurl.Wrap(serveHTTP(logger)))
}

// Package main (cmd/keyserver) serves decryption keys to certified sessions.
//
// Each request carries a session certificate signed by a wallet, a request
// signature by the session key, and a payload of seal_approve calls. The
// server verifies both signatures and the certificate lifetime, evaluates the
// calls against the configured policy, and returns every approved key
// encrypted to the request's ephemeral ElGamal key.
//
// Routes:
//
//	POST /v1/fetch_key    fetch approved keys
//	GET  /v1/public_key   master public key for verifying derived keys
//	GET  /livez, /readyz  health
//	GET  /drain, /undrain readiness control
//
// Example usage:
//
//	seal-keyserver generate-key
//	seal-keyserver --master-key-file=master.hex \
//	    --policy=eth-call --rpc-addr=http://localhost:8545 \
//	    --listen-addr=0.0.0.0:8080 --metrics-addr=127.0.0.1:8090
//
// The master secret can instead be held by administrators as Shamir shares:
//
//	seal-keyserver generate-key --shares=5 --share-threshold=3
//	seal-keyserver sign-share --share=<hex> --keystore=admin.json > share1.json
//	seal-keyserver --share-file=share1.json --share-file=share2.json --share-file=share3.json \
//	    --share-admin=0x... --share-threshold=3 --master-public-key=<hex>
//
// SIGINT or SIGTERM drains the server for --drain-seconds before a graceful
// shutdown; a second signal cuts the drain short.
package main

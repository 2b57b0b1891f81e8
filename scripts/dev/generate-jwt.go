package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	secret  = flag.String("secret", "dev-secret", "HMAC secret, must match rategate.auth.secret")
	subject = flag.String("sub", "user123", "subject claim")
	role    = flag.String("role", "", "role claim, e.g. admin to exercise bypass roles")
	ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
)

func main() {
	flag.Parse()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	if *role != "" {
		claims["role"] = *role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(*secret))
	if err != nil {
		log.Fatal("Failed to sign token:", err)
	}

	fmt.Println("JWT Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Use this token with:")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" -H \"X-Forwarded-Uri: /api/test\" http://localhost:8080/v1/authorize\n", tokenString)
}

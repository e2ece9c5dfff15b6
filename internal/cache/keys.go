package cache

import "fmt"

func RateLimitKey(scope, clientIP string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, clientIP)
}

func GarmentListKey(filterHash string) string {
	return fmt.Sprintf("garments:list:%s", filterHash)
}

package main

/*
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

__attribute__((visibility("default")))
void Greet(void) {
	const char *marker = getenv("ELFDYN_MARKER");
	if (marker == NULL || marker[0] == '\0') {
		marker = "/tmp/elfdyn_marker.txt";
	}

	FILE *f = fopen(marker, "wb");
	if (f == NULL) {
		return;
	}
	const unsigned char content[2] = {'o', 'k'};
	(void)fwrite(content, 1, sizeof(content), f);
	(void)fclose(f);
}

__attribute__((visibility("default")))
int GreetStatus(void) {
	Greet();
	return 1337;
}
*/
import "C"

// built with: go build -buildmode=c-shared -o basic.so shared.go
func main() {}

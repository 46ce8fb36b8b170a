// Command memallocctl runs allocation workloads against the block allocator.
package main

func main() {
	execute()
}

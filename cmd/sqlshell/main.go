package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"sqlconnect"
	"sqlconnect/internal/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sqlshell:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	application, err := app.New()
	if err != nil {
		return err
	}

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		return application.Run()
	case "exec":
		fs := flag.NewFlagSet("exec", flag.ContinueOnError)
		file := fs.String("f", "", "script file to execute")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return fmt.Errorf("exec: -f is required")
		}
		script, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		return withConn(application, func(ctx context.Context, conn *sqlconnect.Conn) error {
			return conn.ExecScript(ctx, string(script))
		})
	case "query":
		if len(args) != 1 {
			return fmt.Errorf("usage: sqlshell query <sql>")
		}
		return withConn(application, func(ctx context.Context, conn *sqlconnect.Conn) error {
			return printQuery(ctx, conn, args[0])
		})
	default:
		return fmt.Errorf("unknown command %q (expected serve, exec or query)", cmd)
	}
}

func withConn(application *app.App, fn func(context.Context, *sqlconnect.Conn) error) error {
	conn, err := application.OpenConn()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(context.Background(), conn)
}

func printQuery(ctx context.Context, conn *sqlconnect.Conn, sql string) error {
	rows, err := conn.ExecSQL(ctx, sql)
	if err != nil {
		return err
	}
	if rows == nil {
		fmt.Println("ok")
		return nil
	}
	defer rows.Close()
	for rows.Next(ctx) {
		row := rows.Row()
		for i := 0; i < row.Len(); i++ {
			if i > 0 {
				fmt.Print("|")
			}
			fmt.Print(format(row.Value(i)))
		}
		fmt.Println()
	}
	return rows.Err()
}

func format(v sqlconnect.Value) string {
	switch a := v.Any().(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", a)
	default:
		return fmt.Sprint(a)
	}
}
